// ABOUTME: Thread-safe byte ring buffer for device callbacks
// ABOUTME: Bridges blocking stream I/O and the realtime audio callback
package sink

import (
	"errors"
	"sync"
)

// ErrRingClosed is returned by blocking ring operations after Close.
var ErrRingClosed = errors.New("ring buffer closed")

// RingBuffer is a circular byte buffer shared between one producer and one
// consumer. The realtime audio callback uses the non-blocking Read/Write;
// the stream side uses the blocking ReadFull/WriteFull.
type RingBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	rpos   int
	wpos   int
	count  int
	closed bool
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{buf: make([]byte, capacity)}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Write copies as much of p as fits and returns the number of bytes
// accepted. It never blocks; callers in a realtime callback drop the rest.
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := rb.write(p)
	if n > 0 {
		rb.cond.Broadcast()
	}
	return n
}

// Read copies buffered bytes into p and returns the number copied. It
// never blocks; on underrun the remainder of p is zero-filled so the
// device keeps playing silence.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := rb.read(p)
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	if n > 0 {
		rb.cond.Broadcast()
	}
	return n
}

// WriteFull blocks until all of p has been accepted or the ring is closed.
func (rb *RingBuffer) WriteFull(p []byte) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for len(p) > 0 {
		if rb.closed {
			return ErrRingClosed
		}
		n := rb.write(p)
		if n > 0 {
			p = p[n:]
			rb.cond.Broadcast()
			continue
		}
		rb.cond.Wait()
	}
	return nil
}

// ReadFull blocks until p is completely filled or the ring is closed.
func (rb *RingBuffer) ReadFull(p []byte) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for len(p) > 0 {
		if rb.closed {
			return ErrRingClosed
		}
		n := rb.read(p)
		if n > 0 {
			p = p[n:]
			rb.cond.Broadcast()
			continue
		}
		rb.cond.Wait()
	}
	return nil
}

// Available returns the number of buffered bytes.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Close wakes all blocked callers; further blocking calls fail.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}

func (rb *RingBuffer) write(p []byte) int {
	written := 0
	for written < len(p) && rb.count < len(rb.buf) {
		// Contiguous writable span: bounded by the wrap point and by the
		// unread bytes ahead of wpos.
		span := len(rb.buf) - rb.wpos
		if free := len(rb.buf) - rb.count; span > free {
			span = free
		}
		n := copy(rb.buf[rb.wpos:rb.wpos+span], p[written:])
		rb.wpos = (rb.wpos + n) % len(rb.buf)
		rb.count += n
		written += n
	}
	return written
}

func (rb *RingBuffer) read(p []byte) int {
	read := 0
	for read < len(p) && rb.count > 0 {
		end := rb.rpos + rb.count
		if end > len(rb.buf) {
			end = len(rb.buf)
		}
		n := copy(p[read:], rb.buf[rb.rpos:end])
		rb.rpos = (rb.rpos + n) % len(rb.buf)
		rb.count -= n
		read += n
	}
	return read
}
