/*
Dirty pages have to be written out to disk before evicted.
If that write happens on the eviction path, the fetch that triggered it pays
for the I/O. The background writer flushes dirty unpinned frames ahead of
time so evictions mostly find clean victims.
*/
package buffer

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// delay between rounds
	bgWriterDelay = 200 * time.Millisecond
	// in each round, this many frames are flushed at most
	bgWriterMaxPages = 100
)

// BackgroundWriter periodically writes back dirty unpinned frames
type BackgroundWriter struct {
	m    *Manager
	stop chan struct{}
	done chan struct{}
}

// NewBackgroundWriter initializes the background writer for the pool
func NewBackgroundWriter(m *Manager) *BackgroundWriter {
	return &BackgroundWriter{
		m:    m,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start runs the write loop until Stop is called
func (bw *BackgroundWriter) Start() {
	go func() {
		defer close(bw.done)
		ticker := time.NewTicker(bgWriterDelay)
		defer ticker.Stop()
		for {
			select {
			case <-bw.stop:
				return
			case <-ticker.C:
				// flush errors are retried next round; the eviction path
				// still write-backs whatever this loop missed
				_, _ = bw.m.syncDirtyFrames(bgWriterMaxPages)
			}
		}
	}()
}

// Stop terminates the write loop and waits for it to finish
func (bw *BackgroundWriter) Stop() {
	close(bw.stop)
	<-bw.done
}

// syncDirtyFrames writes back up to max dirty unpinned frames
// returns how many frames were written
func (m *Manager) syncDirtyFrames(max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for _, f := range m.frames {
		if written >= max {
			break
		}
		if !f.pageID.IsValid() || !f.dirty || f.pinCount != 0 {
			continue
		}
		if err := m.flushFrame(f); err != nil {
			return written, errors.Wrap(err, "flushFrame failed")
		}
		written++
	}
	return written, nil
}
