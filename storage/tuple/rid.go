package tuple

import (
	"fmt"

	"github.com/bufdb/bufdb/storage/page"
)

// RID is a record id: page id plus slot index
// with rid, the record can be located, and the lock manager keys its
// lock table by it. RID is comparable so it can be used as a map key
type RID struct {
	pageID page.PageID
	slot   page.SlotIndex
}

// NewRID initializes rid
func NewRID(pid page.PageID, slot page.SlotIndex) RID {
	return RID{
		pageID: pid,
		slot:   slot,
	}
}

// PageID returns page id
func (r RID) PageID() page.PageID {
	return r.pageID
}

// SlotIndex returns slot index
func (r RID) SlotIndex() page.SlotIndex {
	return r.slot
}

// String formats rid for diagnostics
func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.pageID, r.slot)
}
