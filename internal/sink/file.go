// ABOUTME: File and FIFO output sink
// ABOUTME: Writes raw audio bytes to a path opened read-write
package sink

import (
	"fmt"
	"os"

	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// File writes raw audio to a file or FIFO.
type File struct {
	f    *os.File
	spec audio.SampleSpec
}

// OpenFile opens path for writing. The path is opened read-write so that
// opening a FIFO does not block waiting for a reader on the other end.
func OpenFile(path string, spec audio.SampleSpec) (*File, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &File{f: f, spec: spec}, nil
}

// Write writes all of p or fails.
func (s *File) Write(p []byte) error {
	if _, err := s.f.Write(p); err != nil {
		return fmt.Errorf("write %s: %w", s.f.Name(), err)
	}
	return nil
}

// Specs returns the sample spec the file carries.
func (s *File) Specs() audio.SampleSpec {
	return s.spec
}

// Close closes the underlying file.
func (s *File) Close() error {
	return s.f.Close()
}
