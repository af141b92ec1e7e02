/*
Log manager seam.

The buffer manager adopts the steal policy: dirty pages may be written out
before their transaction commits. Under write-ahead logging that is only safe
when the log covering the page's last update is durable first, so the pool
forces the log up to the page's lsn before every write-back. This package
defines the narrow interface the pool consumes; the log's record format and
replay are outside the core. A nil Manager disables logging.
*/
package wal

import (
	"sync"

	"github.com/bufdb/bufdb/common"
)

// Manager is the log interface the buffer manager consumes
type Manager interface {
	// Force makes the log durable up to lsn. Blocking.
	Force(lsn common.LSN) error
}

// Recorder is a Manager which records the highest lsn forced.
// tests use it to assert the force-before-write ordering
type Recorder struct {
	mu sync.Mutex
	// forced is the highest lsn forced so far
	forced common.LSN
	// calls counts Force invocations
	calls int
}

// NewRecorder initializes the recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Force records the lsn
func (r *Recorder) Force(lsn common.LSN) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lsn > r.forced {
		r.forced = lsn
	}
	r.calls++
	return nil
}

// Forced returns the highest lsn forced so far
func (r *Recorder) Forced() common.LSN {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forced
}

// Calls returns how many times Force was invoked
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
