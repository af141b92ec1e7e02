package disk

import "testing"

// TestingNewFileManager initializes disk manager with file storage
// the page file is placed under t.TempDir() so it is removed after the test
func TestingNewFileManager(t *testing.T) (Manager, error) {
	return NewManager(t.TempDir() + "/pages")
}

// TestingNewBufferManager initializes disk manager with buffer storage instead of
// file storage. This prevents unnecessary disk I/O.
func TestingNewBufferManager() (Manager, error) {
	return newManager(newBufferStorage())
}
