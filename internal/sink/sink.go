// ABOUTME: Sink capability shared by all audio destinations
// ABOUTME: Defines the write/specs contract the routing core composes over
package sink

import "github.com/spdif-tools/autodec-go/pkg/audio"

// Sink accepts raw audio bytes shaped by its own sample spec. Writes are
// total-or-failed (no partial writes), and Specs is stable for the life of
// the sink. A sink has exactly one owner at a time; ownership moves by
// handoff, never by sharing.
type Sink interface {
	Write(p []byte) error
	Specs() audio.SampleSpec
}
