// ABOUTME: File and FIFO capture source
// ABOUTME: Assembles full chunks from short reads, retrying through EOF
package source

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/spdif-tools/autodec-go/pkg/audio"
)

const defaultRetryDelay = 500 * time.Millisecond

// File reads fixed-size chunks from a file or FIFO. End-of-file is not
// fatal: a FIFO writer can disappear and come back, so the source logs,
// waits, and keeps reading the same handle.
type File struct {
	f      *os.File
	spec   audio.SampleSpec
	buf    []byte
	retry  time.Duration
	closed atomic.Bool
}

// OpenFile opens path as a capture source delivering chunkFrames frames
// per read.
func OpenFile(path string, spec audio.SampleSpec, chunkFrames int) (*File, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if chunkFrames <= 0 {
		return nil, fmt.Errorf("chunk frames must be positive, got %d", chunkFrames)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	return &File{
		f:     f,
		spec:  spec,
		buf:   make([]byte, chunkFrames*spec.FrameBytes()),
		retry: defaultRetryDelay,
	}, nil
}

// ReadChunk blocks until a full chunk has been read.
func (s *File) ReadChunk() ([]byte, error) {
	got := 0
	for got < len(s.buf) {
		n, err := s.f.Read(s.buf[got:])
		got += n
		if err == io.EOF || (err == nil && n == 0) {
			if s.closed.Load() {
				return nil, io.EOF
			}
			log.Printf("Input stream lost, retrying in %v", s.retry)
			time.Sleep(s.retry)
			continue
		}
		if err != nil {
			if s.closed.Load() {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read input %s: %w", s.f.Name(), err)
		}
	}
	return s.buf, nil
}

// Specs returns the input sample spec.
func (s *File) Specs() audio.SampleSpec {
	return s.spec
}

// Close releases the handle; a blocked ReadChunk returns io.EOF.
func (s *File) Close() error {
	s.closed.Store(true)
	return s.f.Close()
}
