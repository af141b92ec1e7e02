/*
PageGuard is a scoped handle over a pinned frame.

Manual pin/unpin pairing is error-prone: any early return between FetchPage and
UnpinPage leaks a pin and the frame can never be evicted again. The guard owns
exactly one pin and gives it back on Release, which is idempotent so it can sit
in a defer while the caller also releases early on the happy path.
*/
package buffer

import (
	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/page"
)

// PageGuard owns one pin of a frame
type PageGuard struct {
	m     *Manager
	frame *Frame
	// dirty accumulates until Release hands it to UnpinPage
	dirty    bool
	released bool
}

// AcquirePage fetches the page and wraps the pinned frame in a guard
func (m *Manager) AcquirePage(pid page.PageID) (*PageGuard, error) {
	f, err := m.FetchPage(pid)
	if err != nil {
		return nil, errors.Wrap(err, "FetchPage failed")
	}
	return &PageGuard{m: m, frame: f}, nil
}

// AcquireNewPage allocates a fresh page and wraps the pinned frame in a guard
func (m *Manager) AcquireNewPage() (*PageGuard, error) {
	f, err := m.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "NewPage failed")
	}
	return &PageGuard{m: m, frame: f}, nil
}

// Frame returns the guarded frame
func (g *PageGuard) Frame() *Frame {
	return g.frame
}

// PageID returns the guarded page's id
// the id is stable while the guard holds its pin
func (g *PageGuard) PageID() page.PageID {
	return g.frame.PageID()
}

// Page returns the page image
// the caller must hold the frame content lock while using it
func (g *PageGuard) Page() page.PagePtr {
	return g.frame.Page()
}

// MarkDirty records that the caller updated the page
// the flag reaches the frame when the guard is released
func (g *PageGuard) MarkDirty() {
	g.dirty = true
}

// Release unpins the frame. calling Release twice is a no-op
func (g *PageGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.m.UnpinPage(g.frame.PageID(), g.dirty)
}
