/*
Heap access method.

Records live in slotted pages managed by the buffer pool and are addressed by
rid (page id, slot index). Every operation follows the pin discipline: pin the
page through a guard, take the frame content lock, do the work, release. Record
locks are taken through the lock manager so callers run under two-phase
locking; a caller whose transaction gets wounded sees the operation fail and
the transaction state ABORTED.

The heap keeps a first-fit list of its pages and extends itself with a fresh
page when no tracked page can hold a record.
*/
package am

import (
	"sync"

	"github.com/bufdb/bufdb/storage/buffer"
	"github.com/bufdb/bufdb/storage/page"
	"github.com/bufdb/bufdb/transaction/lock"
)

// Manager is the heap access method manager
type Manager struct {
	bm *buffer.Manager
	lm *lock.Manager

	// mu guards pages
	mu sync.Mutex
	// pages are the heap's pages in allocation order, searched first-fit on insert
	pages []page.PageID
}

// NewManager initializes the access method manager
func NewManager(bm *buffer.Manager, lm *lock.Manager) *Manager {
	return &Manager{
		bm: bm,
		lm: lm,
	}
}

// snapshotPages copies the current page list
func (m *Manager) snapshotPages() []page.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]page.PageID, len(m.pages))
	copy(pids, m.pages)
	return pids
}

// trackPage appends a freshly allocated heap page
func (m *Manager) trackPage(pid page.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, pid)
}

// NumPages returns how many pages the heap spans
func (m *Manager) NumPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}
