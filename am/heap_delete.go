package am

import (
	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/page"
	"github.com/bufdb/bufdb/storage/tuple"
	"github.com/bufdb/bufdb/transaction"
)

// Delete removes the record at rid under an exclusive lock
func (m *Manager) Delete(tx *transaction.Tx, rid tuple.RID) error {
	if !tx.HoldsExclusiveLock(rid) {
		if tx.HoldsSharedLock(rid) {
			if !m.lm.LockUpgrade(tx, rid) {
				return ErrLockNotGranted
			}
		} else if !m.lm.LockExclusive(tx, rid) {
			return ErrLockNotGranted
		}
	}

	g, err := m.bm.AcquirePage(rid.PageID())
	if err != nil {
		return errors.Wrap(err, "bm.AcquirePage failed")
	}
	defer g.Release()

	g.Frame().Lock(true)
	defer g.Frame().Unlock(true)
	if err := page.DeleteItem(g.Page(), rid.SlotIndex()); err != nil {
		return errors.Wrap(err, "page.DeleteItem failed")
	}
	g.MarkDirty()
	return nil
}
