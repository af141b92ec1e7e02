package page

import (
	"encoding/binary"
)

// SlotPtr is pointer to slot WITHIN PAGE
type SlotPtr *[slotSize]byte

// slotSize is the byte size of Slot. Slot is defined with uint32
const slotSize = 4

/*
Slot consists of three fields packed into uint32
- item offset/uint15. the offset of the item which the slot points to
- flag/uint2. whether this slot is unused or normal
- item size/uint15. the byte size of the item. items have variable length
  so the size cannot be derived from the offset alone
*/
type Slot uint32

// slotFlag is flag stored in Slot
type slotFlag uint8

const (
	// slotFlagUnused indicates the slot was freed by item deletion (or never used)
	slotFlagUnused slotFlag = iota
	// slotFlagNormal indicates the slot points to a live item
	slotFlagNormal
)

// SlotIndex is the index of the slot within page
// this is not byte offset. the first slot's index is 0 and the next one's index is 1....
type SlotIndex uint16

const (
	// FirstSlotIndex is the first slot index
	FirstSlotIndex SlotIndex = 0
	// MaxSlotIndex is the max slot index
	MaxSlotIndex SlotIndex = PageSize / slotSize
	// InvalidSlotIndex indicates the slot does not exist
	InvalidSlotIndex SlotIndex = MaxSlotIndex + 1
)

// generateSlot generates slot from offset 15bit, flag 2bit, size 15bit
func generateSlot(io itemOffset, flag slotFlag, size itemSize) Slot {
	var slot uint32
	slot |= uint32(io) << 17
	slot |= uint32(flag) << 15
	slot |= uint32(size)
	return Slot(slot)
}

// convertSlot converts slot pointer to slot for bit operation
func convertSlot(s SlotPtr) Slot {
	return Slot(binary.LittleEndian.Uint32(s[:]))
}

// getItemOffset returns item offset
func getItemOffset(s SlotPtr) itemOffset {
	slot := convertSlot(s)
	return itemOffset(uint32(slot) >> 17)
}

// getItemSize returns item size
func getItemSize(s SlotPtr) itemSize {
	slot := convertSlot(s)
	mask := uint32((1 << 15) - 1)
	return itemSize(uint32(slot) & mask)
}

// getFlag returns slot flag
func getFlag(s SlotPtr) slotFlag {
	slot := convertSlot(s)
	mask := uint32((1 << 15) | (1 << 16))
	flag := (uint32(slot) & mask) >> 15
	return slotFlag(flag)
}

// IsUnused checks whether the page slot is unused
func IsUnused(s SlotPtr) bool {
	return getFlag(s) == slotFlagUnused
}

// IsNormal checks whether the page slot points to a live item
func IsNormal(s SlotPtr) bool {
	return getFlag(s) == slotFlagNormal
}

// SetUnused sets flag to unused
// the item space is not reclaimed, only the slot is freed for reuse
func SetUnused(s SlotPtr) {
	slot := convertSlot(s)
	var mask uint32 = (1 << 15) | (1 << 16)
	newSlot := uint32(slot) & ^mask
	binary.LittleEndian.PutUint32(s[:], newSlot)
}
