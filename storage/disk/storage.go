/*
This file defines storage interface and its implementations.
We don't want to execute disk I/O in test, so it's better to use byte slice instead of actual file in test.
For this reason, storage interface is defined. Possible operation with storage is read/write/seek/sync/get size.
The implementations are:
- fileStorage: wrapper of os.File
- bufferStorage: byte slice and the current position within it
*/
package disk

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/page"
)

// storage implements the operations necessary for the page file
type storage interface {
	io.ReadWriteSeeker
	Size() (int64, error)
	Sync() error
	Close() error
}

// fileStorage is file storage
type fileStorage struct {
	*os.File
}

// Size returns the storage's size
func (fs fileStorage) Size() (int64, error) {
	stat, err := fs.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "Stat failed")
	}
	return stat.Size(), nil
}

// bufferStorage is buffer storage
type bufferStorage struct {
	// buf is actual contents
	buf []byte
	// off is current position
	off int
}

// newBufferStorage initializes bufferStorage
func newBufferStorage() *bufferStorage {
	return &bufferStorage{}
}

// Size returns the buffer size
func (bs *bufferStorage) Size() (int64, error) {
	return int64(len(bs.buf)), nil
}

// Sync doesn't do anything
func (bs *bufferStorage) Sync() error {
	// on-memory byte slice doesn't need sync
	return nil
}

// Close doesn't do anything
func (bs *bufferStorage) Close() error {
	return nil
}

// Read reads buffer at current position into p
func (bs *bufferStorage) Read(p []byte) (n int, err error) {
	if bs.off >= len(bs.buf) {
		return 0, io.EOF
	}
	nread := copy(p, bs.buf[bs.off:])
	bs.off += nread
	if nread != len(p) {
		return nread, io.EOF
	}
	return nread, nil
}

// Write writes p into buffer at current position
// the buffer is extended page by page when the write goes past the end
func (bs *bufferStorage) Write(p []byte) (n int, err error) {
	for len(bs.buf) < bs.off+len(p) {
		bs.buf = append(bs.buf, make([]byte, page.PageSize)...)
	}
	nwritten := copy(bs.buf[bs.off:], p)
	bs.off += nwritten
	return nwritten, nil
}

// Seek seeks and moves buffer off
func (bs *bufferStorage) Seek(off int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return 0, errors.Errorf("whence is unexpected: %d", whence)
	}
	bs.off = int(off)
	return off, nil
}
