// ABOUTME: Capture source abstraction for the input side of the router
// ABOUTME: Sources deliver fixed-size chunks at the input sample spec
package source

import "github.com/spdif-tools/autodec-go/pkg/audio"

// Source delivers fixed-size chunks of raw input bytes. ReadChunk blocks
// until a full chunk of chunkFrames frames is available. The returned
// slice is reused between calls.
type Source interface {
	ReadChunk() ([]byte, error)
	Specs() audio.SampleSpec
	Close() error
}
