package am

import (
	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/page"
	"github.com/bufdb/bufdb/storage/tuple"
	"github.com/bufdb/bufdb/transaction"
)

// Fetch reads the record at rid under a shared lock
func (m *Manager) Fetch(tx *transaction.Tx, rid tuple.RID) ([]byte, error) {
	// a transaction writing the record reads it through its exclusive lock
	if !tx.HoldsExclusiveLock(rid) && !tx.HoldsSharedLock(rid) {
		if !m.lm.LockShared(tx, rid) {
			return nil, ErrLockNotGranted
		}
	}

	g, err := m.bm.AcquirePage(rid.PageID())
	if err != nil {
		return nil, errors.Wrap(err, "bm.AcquirePage failed")
	}
	defer g.Release()

	g.Frame().Lock(false)
	defer g.Frame().Unlock(false)
	item, err := page.GetItem(g.Page(), rid.SlotIndex())
	if err != nil {
		return nil, errors.Wrap(err, "page.GetItem failed")
	}
	rec, err := unmarshalRecord(item)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalRecord failed")
	}
	// the decoded payload must survive the unpin, so copy it out
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	return data, nil
}
