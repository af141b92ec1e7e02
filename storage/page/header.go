/*
Pages are laid out as slotted pages.
The header is followed by the slot array which grows toward the end of the page,
while items are stacked from the end of the page toward the slot array.

  - +-------------+----------------------------+
  - | page header | slot1 slot2 slot3 ...      |
  - +-------------+----------------------------+
  - |             ^ lowerOffset                |
  - |                                          |
  - |             v upperOffset                |
  - +---------+--------------------------------+
  - |         | item3 item2 item1              |
  - +---------+--------------------------------+

The space between lowerOffset and upperOffset is free space where new items
(and the slots pointing to them) are placed.
*/
package page

import (
	"encoding/binary"

	"github.com/bufdb/bufdb/common"
)

// offset is the byte offset within the page
type offset uint16

// byte offset of each page header field
const (
	// lsn is defined at the head of page
	lsnOffset offset = 0
	// lsn is uint64, so add 8 bytes
	flagsOffset offset = lsnOffset + 8
	// flags is uint16, so add 2 bytes
	lowerOffsetOffset offset = flagsOffset + 2
	// lowerOffset is uint16, so add 2 bytes
	upperOffsetOffset offset = lowerOffsetOffset + 2
	// upperOffset is uint16, so add 2 bytes
	slotsOffset offset = upperOffsetOffset + 2
)

// InitializePage initializes page
// a newly allocated page is 0-filled, so it has to be initialized with this function
// before any item is added
func InitializePage(p PagePtr) {
	SetLSN(p, common.InvalidLSN)
	SetFlags(p, 0)
	SetLowerOffset(p, slotsOffset)
	SetUpperOffset(p, PageSize)
}

// IsInitialized checks whether the page has been already initialized
// when the upperOffset is 0, the page is still the 0-filled image from allocation
func IsInitialized(p PagePtr) bool {
	up := binary.LittleEndian.Uint16(p[upperOffsetOffset:slotsOffset])
	return up != 0
}

// GetLSN returns the lsn of the log record which updated this page most recently
func GetLSN(p PagePtr) common.LSN {
	lsn := binary.LittleEndian.Uint64(p[lsnOffset:flagsOffset])
	return common.LSN(lsn)
}

// SetLSN sets lsn
func SetLSN(p PagePtr, lsn common.LSN) {
	binary.LittleEndian.PutUint64(p[lsnOffset:flagsOffset], uint64(lsn))
}

// GetFlags returns flags
func GetFlags(p PagePtr) uint16 {
	return binary.LittleEndian.Uint16(p[flagsOffset:lowerOffsetOffset])
}

// SetFlags sets flags
func SetFlags(p PagePtr, flags uint16) {
	binary.LittleEndian.PutUint16(p[flagsOffset:lowerOffsetOffset], flags)
}

// GetLowerOffset returns lower offset
func GetLowerOffset(p PagePtr) offset {
	lo := binary.LittleEndian.Uint16(p[lowerOffsetOffset:upperOffsetOffset])
	return offset(lo)
}

// SetLowerOffset sets lower offset
func SetLowerOffset(p PagePtr, o offset) {
	binary.LittleEndian.PutUint16(p[lowerOffsetOffset:upperOffsetOffset], uint16(o))
}

// GetUpperOffset returns upper offset
func GetUpperOffset(p PagePtr) offset {
	up := binary.LittleEndian.Uint16(p[upperOffsetOffset:slotsOffset])
	return offset(up)
}

// SetUpperOffset sets upper offset
func SetUpperOffset(p PagePtr, o offset) {
	binary.LittleEndian.PutUint16(p[upperOffsetOffset:slotsOffset], uint16(o))
}
