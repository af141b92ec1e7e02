/*
Frame is a fixed-size memory slot holding one page, plus the metadata the
manager needs for its cache discipline:

1. pin count
- how many callers are currently using the frame.
- a frame with pin count > 0 must not be evicted, so it is never in the replacer.
- the flow is: pin the frame (via FetchPage/NewPage) -> do anything with the page
- -> unpin the frame (via UnpinPage) after the work is completed.
- IMPORTANT: the caller is responsible for UnpinPage. PageGuard does this on all exit paths.

2. dirty flag
- whether the page in the frame differs from the persistent copy.
- a dirty frame must be written out to disk before eviction, and the flag is
  sticky until that write-back (unpinning with dirty=false never clears it).

Frames are allocated once at pool startup and reused forever.
All metadata is guarded by the pool latch; the content lock only guards the
page bytes for callers holding a pin.
*/
package buffer

import (
	"sync"

	"github.com/bufdb/bufdb/common"
	"github.com/bufdb/bufdb/storage/page"
)

// FrameID is the index of a frame within the pool
type FrameID int32

const (
	// FirstFrameID is the first frame id
	FirstFrameID FrameID = 0
	// InvalidFrameID is the sentinel which means `no frame`
	InvalidFrameID FrameID = -1
)

// Frame is a buffer frame
type Frame struct {
	// id of the resident page. InvalidPageID when the frame holds no page
	pageID page.PageID
	// data is the page image
	data [page.PageSize]byte
	// pinCount is how many callers currently use the frame
	pinCount int
	// dirty is whether the page differs from the persistent copy
	dirty bool
	// nextFreeID links the frame into the free list
	nextFreeID FrameID
	// contentLock protects the page bytes
	// callers must hold a pin before taking it, and must release it before unpinning
	contentLock sync.RWMutex
}

// newFrames initializes the frame pool and links every frame into the free list
func newFrames(poolSize int) []*Frame {
	frames := make([]*Frame, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = &Frame{
			pageID:     page.InvalidPageID,
			nextFreeID: FrameID(i + 1),
		}
	}
	if poolSize > 0 {
		frames[poolSize-1].nextFreeID = freeListInvalidID
	}
	return frames
}

// PageID returns the id of the resident page
func (f *Frame) PageID() page.PageID {
	return f.pageID
}

// Page returns the page image
// the caller must hold a pin, and the content lock while reading or writing it
func (f *Frame) Page() page.PagePtr {
	return page.PagePtr(&f.data)
}

// LSN returns the resident page's lsn
func (f *Frame) LSN() common.LSN {
	return page.GetLSN(f.Page())
}

// Lock acquires the frame content lock
// exclusive for writers, shared for readers
func (f *Frame) Lock(exclusive bool) {
	if exclusive {
		f.contentLock.Lock()
	} else {
		f.contentLock.RLock()
	}
}

// Unlock releases the frame content lock
func (f *Frame) Unlock(exclusive bool) {
	if exclusive {
		f.contentLock.Unlock()
	} else {
		f.contentLock.RUnlock()
	}
}

// resetMemory zeroes the page image
func (f *Frame) resetMemory() {
	f.data = [page.PageSize]byte{}
}
