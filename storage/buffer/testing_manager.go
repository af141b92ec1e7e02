package buffer

import (
	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/disk"
	"github.com/bufdb/bufdb/wal"
)

// testingPoolSize is the default pool size in tests
const testingPoolSize = 16

// TestingNewManager initializes the buffer manager over in-memory disk storage
func TestingNewManager() (*Manager, error) {
	return TestingNewManagerWithPoolSize(testingPoolSize)
}

// TestingNewManagerWithPoolSize initializes the buffer manager with the given
// number of frames over in-memory disk storage
func TestingNewManagerWithPoolSize(poolSize int) (*Manager, error) {
	dm, err := disk.TestingNewBufferManager()
	if err != nil {
		return nil, errors.Wrap(err, "disk.TestingNewBufferManager failed")
	}
	return NewManager(dm, nil, poolSize), nil
}

// TestingNewManagerWithWAL initializes the buffer manager with a recording log
// manager so tests can observe the force-before-write rule
func TestingNewManagerWithWAL(poolSize int) (*Manager, *wal.Recorder, error) {
	dm, err := disk.TestingNewBufferManager()
	if err != nil {
		return nil, nil, errors.Wrap(err, "disk.TestingNewBufferManager failed")
	}
	rec := wal.NewRecorder()
	return NewManager(dm, rec, poolSize), rec, nil
}
