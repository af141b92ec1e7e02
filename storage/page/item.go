/*
`item` is the unit stored within a slotted page. The heap access method stores
one record per item.

item-related interface is
- AddItem(PagePtr, ItemPtr): adds item to the page. unused slots are reused before
  the slot array is extended. if the page does not have enough space, return error.
- GetItem(PagePtr, SlotIndex): gets item from page. the location is calculated from the slot.
- DeleteItem(PagePtr, SlotIndex): marks the slot unused. the item space is not compacted.
*/
package page

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ItemPtr points to item within page
// item length is variable
type ItemPtr []byte

// itemOffset is the byte offset of the item within page
type itemOffset uint16

// itemSize is the size of the item
type itemSize uint16

// maxItemSize is the biggest item which fits an empty page alongside its slot
const maxItemSize = PageSize - int(slotsOffset) - slotSize

// ErrNoSpace is returned by AddItem when the page cannot hold the item
var ErrNoSpace = errors.New("page does not have enough space for item")

// GetSlot returns page slot
func GetSlot(p PagePtr, idx SlotIndex) (SlotPtr, error) {
	if idx > MaxSlotIndex {
		return nil, errors.Errorf("invalid slot index %d", idx)
	}
	so := uint16(slotsOffset) + uint16(idx)*slotSize
	return SlotPtr(p[so : so+slotSize]), nil
}

// GetNSlotIndex returns the biggest page slot index which has been allocated
// this returns InvalidSlotIndex when no slot has been allocated
func GetNSlotIndex(p PagePtr) SlotIndex {
	lo := GetLowerOffset(p)
	si := SlotIndex((lo - slotsOffset) / slotSize)
	if si == 0 {
		// no slot has been allocated
		return InvalidSlotIndex
	}
	return si - 1
}

// findFreeSlot finds unused slot
// returns InvalidSlotIndex when every allocated slot is in use
func findFreeSlot(p PagePtr) (SlotIndex, error) {
	nidx := GetNSlotIndex(p)
	if nidx == InvalidSlotIndex {
		return InvalidSlotIndex, nil
	}
	for i := FirstSlotIndex; i <= nidx; i++ {
		slot, err := GetSlot(p, i)
		if err != nil {
			return InvalidSlotIndex, errors.Wrap(err, "GetSlot failed")
		}
		if IsUnused(slot) {
			return i, nil
		}
	}
	return InvalidSlotIndex, nil
}

// AddItem adds item to the page and returns the index of the slot pointing to it
// an unused slot is reused when available, otherwise the slot array is extended
func AddItem(p PagePtr, item ItemPtr) (SlotIndex, error) {
	if len(item) == 0 || len(item) > maxItemSize {
		return InvalidSlotIndex, errors.Errorf("invalid item size %d", len(item))
	}

	idx, err := findFreeSlot(p)
	if err != nil {
		return InvalidSlotIndex, errors.Wrap(err, "findFreeSlot failed")
	}
	extend := idx == InvalidSlotIndex

	need := len(item)
	if extend {
		// a new slot also comes out of the free space
		need += slotSize
	}
	if CalculateFreeSpace(p) < need {
		return InvalidSlotIndex, ErrNoSpace
	}

	if extend {
		nidx := GetNSlotIndex(p)
		if nidx == InvalidSlotIndex {
			idx = FirstSlotIndex
		} else {
			idx = nidx + 1
		}
		if idx > MaxSlotIndex {
			return InvalidSlotIndex, ErrNoSpace
		}
		SetLowerOffset(p, GetLowerOffset(p)+slotSize)
	}

	// place the item just below the current upper offset
	upper := GetUpperOffset(p) - offset(len(item))
	copy(p[upper:upper+offset(len(item))], item)
	SetUpperOffset(p, upper)

	slot := generateSlot(itemOffset(upper), slotFlagNormal, itemSize(len(item)))
	so := uint16(slotsOffset) + uint16(idx)*slotSize
	binary.LittleEndian.PutUint32(p[so:so+slotSize], uint32(slot))
	return idx, nil
}

// GetItem gets item from the page
// the returned byte slice aliases the page buffer, so the caller must hold
// the frame's content lock while using it
func GetItem(p PagePtr, idx SlotIndex) (ItemPtr, error) {
	nidx := GetNSlotIndex(p)
	if nidx == InvalidSlotIndex || idx > nidx {
		return nil, errors.Errorf("slot %d has not been allocated", idx)
	}
	slot, err := GetSlot(p, idx)
	if err != nil {
		return nil, errors.Wrap(err, "GetSlot failed")
	}
	if !IsNormal(slot) {
		return nil, errors.Errorf("slot %d does not point to a live item", idx)
	}
	io := getItemOffset(slot)
	is := getItemSize(slot)
	return ItemPtr(p[io : io+itemOffset(is)]), nil
}

// DeleteItem marks the slot unused
// the item space is left in place. the freed slot is reused by a later AddItem
func DeleteItem(p PagePtr, idx SlotIndex) error {
	nidx := GetNSlotIndex(p)
	if nidx == InvalidSlotIndex || idx > nidx {
		return errors.Errorf("slot %d has not been allocated", idx)
	}
	slot, err := GetSlot(p, idx)
	if err != nil {
		return errors.Wrap(err, "GetSlot failed")
	}
	if !IsNormal(slot) {
		return errors.Errorf("slot %d does not point to a live item", idx)
	}
	SetUnused(slot)
	return nil
}
