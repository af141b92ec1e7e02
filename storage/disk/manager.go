/*
Disk manager deals with the page file.
The page file is a flat collection of fixed-size pages and the offset of each page
is derived from its page id, so the manager needs no per-page index of its own.

The buffer manager is the only expected caller. It consumes the Manager interface
so tests can substitute a recording implementation when they need to observe I/O.
*/
package disk

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/page"
)

// Manager is the disk interface the buffer manager consumes
type Manager interface {
	// ReadPage populates p with the content of the page on disk. Blocking.
	ReadPage(pid page.PageID, p page.PagePtr) error
	// WritePage persists p as the content of the page. Blocking.
	WritePage(pid page.PageID, p page.PagePtr) error
	// AllocatePage returns a fresh page id
	AllocatePage() (page.PageID, error)
	// DeallocatePage marks the page id free on disk
	// deallocating an unknown or already-freed page id is a no-op
	DeallocatePage(pid page.PageID)
	// Sync flushes the page file
	Sync() error
	// Close closes the page file
	Close() error
}

// manager manages the page file through the storage interface
type manager struct {
	// mu serializes seek+read/write pairs and the allocation state
	mu sync.Mutex
	st storage
	// nextPageID is the page id handed out by the next extension of the file
	nextPageID page.PageID
	// freed holds deallocated page ids for reuse, in deallocation order
	freed []page.PageID
	// isFreed prevents double deallocation from growing the freed list
	isFreed map[page.PageID]struct{}
}

// NewManager initializes the disk manager with the page file at path
func NewManager(path string) (Manager, error) {
	st, err := openFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "openFile failed")
	}
	return newManager(st)
}

// newManager initializes the disk manager with the given storage
func newManager(st storage) (*manager, error) {
	size, err := st.Size()
	if err != nil {
		return nil, errors.Wrap(err, "st.Size failed")
	}
	return &manager{
		st:         st,
		nextPageID: page.PageID(size / page.PageSize),
		isFreed:    make(map[page.PageID]struct{}),
	}, nil
}

// ReadPage reads the page from the page file into p
// a page which has been allocated but never written reads back as a zero page
func (m *manager) ReadPage(pid page.PageID, p page.PagePtr) error {
	if !pid.IsValid() {
		return errors.Errorf("invalid page id %d", pid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	off := page.CalculateFileOffset(pid)
	size, err := m.st.Size()
	if err != nil {
		return errors.Wrap(err, "st.Size failed")
	}
	if off >= size {
		// the page has not been written yet
		for i := range p {
			p[i] = 0
		}
		return nil
	}
	if _, err := m.st.Seek(off, 0); err != nil {
		return errors.Wrap(err, "st.Seek failed")
	}
	if _, err := m.st.Read(p[:]); err != nil {
		return errors.Wrap(err, "st.Read failed")
	}
	return nil
}

// WritePage writes p into the page file
func (m *manager) WritePage(pid page.PageID, p page.PagePtr) error {
	if !pid.IsValid() {
		return errors.Errorf("invalid page id %d", pid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	off := page.CalculateFileOffset(pid)
	if _, err := m.st.Seek(off, 0); err != nil {
		return errors.Wrap(err, "st.Seek failed")
	}
	if _, err := m.st.Write(p[:]); err != nil {
		return errors.Wrap(err, "st.Write failed")
	}
	return nil
}

// AllocatePage returns a fresh page id
// deallocated page ids are reused before the file is extended
func (m *manager) AllocatePage() (page.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freed); n != 0 {
		pid := m.freed[n-1]
		m.freed = m.freed[:n-1]
		delete(m.isFreed, pid)
		return pid, nil
	}
	if m.nextPageID == page.MaxPageID {
		return page.InvalidPageID, errors.New("page file is full")
	}
	pid := m.nextPageID
	m.nextPageID++
	return pid, nil
}

// DeallocatePage marks the page id free
// the space is reused by a later AllocatePage. unknown or already-freed page ids are ignored
func (m *manager) DeallocatePage(pid page.PageID) {
	if !pid.IsValid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if pid >= m.nextPageID {
		return
	}
	if _, ok := m.isFreed[pid]; ok {
		return
	}
	m.isFreed[pid] = struct{}{}
	m.freed = append(m.freed, pid)
}

// Sync flushes the page file
func (m *manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.st.Sync(); err != nil {
		return errors.Wrap(err, "st.Sync failed")
	}
	return nil
}

// Close closes the page file
func (m *manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.st.Close(); err != nil {
		return errors.Wrap(err, "st.Close failed")
	}
	return nil
}
