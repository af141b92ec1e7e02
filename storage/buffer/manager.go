/*
Buffer pool manager.

Disk I/O is expensive, so pages are cached in a fixed pool of frames and the
manager is responsible for deciding what stays resident. The page table (an
extendible hash directory) maps page id to frame; the free list hands out
frames that hold no page; the replacer picks a victim among unpinned frames
when the free list is empty.

access rules for frames:
- pin/unpin for the eviction policy: see frame.go
- content lock for reading/writing the page bytes within a pinned frame

the flow when reading tuples on a page is:
- FetchPage (pins) -> Lock(shared) -> read -> Unlock -> UnpinPage
the flow when updating a page is:
- FetchPage (pins) -> Lock(exclusive) -> update -> Unlock -> UnpinPage(dirty)

One coarse latch serializes all pool operations, including the disk I/O done
on eviction. Dirty victims are written back before their frame is rebound;
when a log manager is attached, the log is forced up to the page's lsn before
any write-back (write-ahead rule).
*/
package buffer

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/disk"
	"github.com/bufdb/bufdb/storage/hash"
	"github.com/bufdb/bufdb/storage/page"
	"github.com/bufdb/bufdb/wal"
)

// pageTableBucketSize is the bucket capacity of the page table's hash directory
const pageTableBucketSize = 8

var (
	// ErrInvalidPageID is returned when the sentinel page id is passed
	ErrInvalidPageID = errors.New("invalid page id")
	// ErrBufferExhausted is returned when every frame is pinned
	ErrBufferExhausted = errors.New("all frames are pinned")
	// ErrPageNotFound is returned when the page is not resident
	ErrPageNotFound = errors.New("page is not in the buffer pool")
	// ErrPagePinned is returned when the operation needs an unpinned page
	ErrPagePinned = errors.New("page is still pinned")
)

// Manager manages the buffer pool
type Manager struct {
	// dm is the disk manager the pool reads and writes pages through
	dm disk.Manager
	// lm is the log manager. nil disables logging
	lm wal.Manager
	// mu is the pool latch guarding frame metadata, the page table and the free list
	mu sync.Mutex
	// frames is the fixed frame pool, allocated once
	frames []*Frame
	// pageTable maps resident page id to frame id
	pageTable *hash.Table[page.PageID, FrameID]
	// replacer orders unpinned frames for victim selection
	replacer Replacer[FrameID]
	// freeList points to the head frame of the free list
	freeList FrameID
}

// hashPageID is the stable hash the page table indexes by
func hashPageID(pid page.PageID) uint64 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(pid))
	h := fnv.New64a()
	h.Write(b[:])
	return h.Sum64()
}

// NewManager initializes the buffer pool manager with poolSize frames
// when lm is nil, logging is disabled (for test purpose)
func NewManager(dm disk.Manager, lm wal.Manager, poolSize int) *Manager {
	return &Manager{
		dm:        dm,
		lm:        lm,
		frames:    newFrames(poolSize),
		pageTable: hash.NewTable[page.PageID, FrameID](pageTableBucketSize, hashPageID),
		replacer:  NewLRUReplacer[FrameID](),
		freeList:  FirstFrameID,
	}
}

/*
FetchPage returns the frame holding the page, pinned.
the caller has to call UnpinPage after completion of using the frame.

1. search the page table. on hit, pin and remove the frame from the replacer.
2. on miss, take a frame from the free list, else ask the replacer for a victim.
3. if the victim is dirty, write it back first, then rebind the page table
   and read the page from disk.
*/
func (m *Manager) FetchPage(pid page.PageID) (*Frame, error) {
	if !pid.IsValid() {
		return nil, ErrInvalidPageID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable.Find(pid); ok {
		f := m.frames[fid]
		f.pinCount++
		// pinned frames must not be victim candidates
		m.replacer.Erase(fid)
		return f, nil
	}

	fid, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}
	f := m.frames[fid]
	if err := m.evictFrame(fid); err != nil {
		// the frame holds its old page untouched, put it back in circulation
		m.replacer.Insert(fid)
		return nil, errors.Wrap(err, "evictFrame failed")
	}

	m.pageTable.Insert(pid, fid)
	f.pageID = pid
	if err := m.dm.ReadPage(pid, f.Page()); err != nil {
		// undo the binding, the frame holds garbage now
		m.pageTable.Remove(pid)
		f.pageID = page.InvalidPageID
		m.pushFreeList(fid)
		return nil, errors.Wrap(err, "dm.ReadPage failed")
	}
	f.pinCount = 1
	f.dirty = false
	return f, nil
}

// NewPage allocates a fresh page on disk and returns its frame, pinned and zeroed.
// the caller has to call UnpinPage after completion of using the frame.
func (m *Manager) NewPage() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// acquire the frame first so pool exhaustion doesn't leak a page id
	fid, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}
	f := m.frames[fid]

	pid, err := m.dm.AllocatePage()
	if err != nil {
		if f.pageID.IsValid() {
			m.replacer.Insert(fid)
		} else {
			m.pushFreeList(fid)
		}
		return nil, errors.Wrap(err, "dm.AllocatePage failed")
	}
	if err := m.evictFrame(fid); err != nil {
		m.replacer.Insert(fid)
		return nil, errors.Wrap(err, "evictFrame failed")
	}

	m.pageTable.Insert(pid, fid)
	f.pageID = pid
	f.resetMemory()
	f.pinCount = 1
	f.dirty = false
	return f, nil
}

// allocateFrame returns the frame id where a page will be read into.
// the free list is searched first, then the replacer picks a victim.
// the caller must hold the pool latch
func (m *Manager) allocateFrame() (FrameID, error) {
	if fid := m.popFreeList(); fid != InvalidFrameID {
		return fid, nil
	}
	fid, ok := m.replacer.Victim()
	if !ok {
		return InvalidFrameID, ErrBufferExhausted
	}
	if m.frames[fid].pinCount != 0 {
		// unreachable while the replacer invariant holds: pinned frames are erased on pin
		return InvalidFrameID, ErrBufferExhausted
	}
	return fid, nil
}

// evictFrame unbinds the frame's current page, writing it back first when dirty.
// frames fresh from the free list hold no page and pass through untouched.
// the caller must hold the pool latch
func (m *Manager) evictFrame(fid FrameID) error {
	f := m.frames[fid]
	if !f.pageID.IsValid() {
		return nil
	}
	if f.dirty {
		if err := m.flushFrame(f); err != nil {
			return errors.Wrap(err, "flushFrame failed")
		}
	}
	m.pageTable.Remove(f.pageID)
	f.pageID = page.InvalidPageID
	return nil
}

// UnpinPage releases one pin of the page.
// when the pin count reaches 0 the frame enters the replacer.
// the dirty flag is OR-ed in: unpinning clean never clears an earlier dirty
func (m *Manager) UnpinPage(pid page.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pid)
	if !ok {
		return false
	}
	f := m.frames[fid]
	if f.pinCount <= 0 {
		return false
	}
	f.pinCount--
	f.dirty = f.dirty || dirty
	if f.pinCount == 0 {
		m.replacer.Insert(fid)
	}
	return true
}

// FlushPage writes the page back to disk
func (m *Manager) FlushPage(pid page.PageID) error {
	if !pid.IsValid() {
		return ErrInvalidPageID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pid)
	if !ok {
		return ErrPageNotFound
	}
	if err := m.flushFrame(m.frames[fid]); err != nil {
		return errors.Wrap(err, "flushFrame failed")
	}
	return nil
}

// FlushAllPages writes every resident page back to disk
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.frames {
		if !f.pageID.IsValid() {
			continue
		}
		if err := m.flushFrame(f); err != nil {
			return errors.Wrap(err, "flushFrame failed")
		}
	}
	return nil
}

// flushFrame writes the frame's page back to disk and clears the dirty flag.
// when a log manager is attached, log is forced up to the page's lsn first.
// the caller must hold the pool latch
func (m *Manager) flushFrame(f *Frame) error {
	if m.lm != nil {
		if lsn := f.LSN(); lsn.IsValid() {
			if err := m.lm.Force(lsn); err != nil {
				return errors.Wrap(err, "lm.Force failed")
			}
		}
	}
	if err := m.dm.WritePage(f.pageID, f.Page()); err != nil {
		return errors.Wrap(err, "dm.WritePage failed")
	}
	f.dirty = false
	return nil
}

// DeletePage removes the page from the pool and deallocates it on disk.
// a page pinned by others cannot be deleted.
// the disk deallocation happens even when the page is not resident
func (m *Manager) DeletePage(pid page.PageID) error {
	if !pid.IsValid() {
		return ErrInvalidPageID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable.Find(pid); ok {
		f := m.frames[fid]
		if f.pinCount > 0 {
			return ErrPagePinned
		}
		m.pageTable.Remove(pid)
		m.replacer.Erase(fid)
		f.pageID = page.InvalidPageID
		f.dirty = false
		f.resetMemory()
		m.pushFreeList(fid)
	}
	m.dm.DeallocatePage(pid)
	return nil
}
