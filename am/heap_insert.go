package am

import (
	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/page"
	"github.com/bufdb/bufdb/storage/tuple"
	"github.com/bufdb/bufdb/transaction"
)

// ErrLockNotGranted is returned when the record lock is refused,
// typically because the transaction was wounded
var ErrLockNotGranted = errors.New("record lock not granted")

// Insert adds the record to the heap and locks it exclusively for the transaction.
// the record's exclusive lock is taken as soon as the rid exists; on refusal
// the insertion is undone
func (m *Manager) Insert(tx *transaction.Tx, data []byte) (tuple.RID, error) {
	item, err := marshalRecord(tx.ID(), data)
	if err != nil {
		return tuple.RID{}, errors.Wrap(err, "marshalRecord failed")
	}

	rid, err := m.placeItem(item)
	if err != nil {
		return tuple.RID{}, errors.Wrap(err, "placeItem failed")
	}

	if !m.lm.LockExclusive(tx, rid) {
		// undo: the slot was filled by this call, so erasing it restores the page
		if derr := m.eraseItem(rid); derr != nil {
			return tuple.RID{}, errors.Wrap(derr, "eraseItem failed")
		}
		return tuple.RID{}, ErrLockNotGranted
	}
	return rid, nil
}

// placeItem puts the item on the first tracked page with room, extending the
// heap with a fresh page when none has
func (m *Manager) placeItem(item []byte) (tuple.RID, error) {
	for _, pid := range m.snapshotPages() {
		rid, ok, err := m.tryPlaceOn(pid, item)
		if err != nil {
			return tuple.RID{}, errors.Wrap(err, "tryPlaceOn failed")
		}
		if ok {
			return rid, nil
		}
	}

	g, err := m.bm.AcquireNewPage()
	if err != nil {
		return tuple.RID{}, errors.Wrap(err, "bm.AcquireNewPage failed")
	}
	defer g.Release()

	g.Frame().Lock(true)
	defer g.Frame().Unlock(true)
	page.InitializePage(g.Page())
	idx, err := page.AddItem(g.Page(), item)
	if err != nil {
		return tuple.RID{}, errors.Wrap(err, "page.AddItem failed")
	}
	g.MarkDirty()
	m.trackPage(g.PageID())
	return tuple.NewRID(g.PageID(), idx), nil
}

// tryPlaceOn attempts to add the item to one page
// the second result is false when the page has no room
func (m *Manager) tryPlaceOn(pid page.PageID, item []byte) (tuple.RID, bool, error) {
	g, err := m.bm.AcquirePage(pid)
	if err != nil {
		return tuple.RID{}, false, errors.Wrap(err, "bm.AcquirePage failed")
	}
	defer g.Release()

	g.Frame().Lock(true)
	defer g.Frame().Unlock(true)
	idx, err := page.AddItem(g.Page(), item)
	if err != nil {
		if errors.Is(err, page.ErrNoSpace) {
			return tuple.RID{}, false, nil
		}
		return tuple.RID{}, false, errors.Wrap(err, "page.AddItem failed")
	}
	g.MarkDirty()
	return tuple.NewRID(pid, idx), true, nil
}

// eraseItem removes an item that was placed but whose lock was refused
func (m *Manager) eraseItem(rid tuple.RID) error {
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
