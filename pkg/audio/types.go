// ABOUTME: Audio sample format and stream spec definitions
// ABOUTME: Defines PCM formats, byte widths, and frame geometry
package audio

import "fmt"

// Format identifies a raw PCM sample encoding. String names match the
// raw-format names ffmpeg uses (s16le, f32be, ...).
type Format int

const (
	S16LE Format = iota
	S16BE
	S24LE
	S24BE
	S32LE
	S32BE
	F32LE
	F32BE
)

var formatNames = map[Format]string{
	S16LE: "s16le",
	S16BE: "s16be",
	S24LE: "s24le",
	S24BE: "s24be",
	S32LE: "s32le",
	S32BE: "s32be",
	F32LE: "f32le",
	F32BE: "f32be",
}

var formatWidths = map[Format]int{
	S16LE: 2,
	S16BE: 2,
	S24LE: 3,
	S24BE: 3,
	S32LE: 4,
	S32BE: 4,
	F32LE: 4,
	F32BE: 4,
}

// String returns the ffmpeg-compatible name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ByteWidth returns the number of bytes one sample occupies.
func (f Format) ByteWidth() int {
	return formatWidths[f]
}

// IsFloat reports whether the format encodes IEEE floats.
func (f Format) IsFloat() bool {
	return f == F32LE || f == F32BE
}

// IsBigEndian reports whether samples are stored most-significant byte first.
func (f Format) IsBigEndian() bool {
	return f == S16BE || f == S24BE || f == S32BE || f == F32BE
}

// ParseFormat converts a format name (as accepted on the command line)
// into a Format.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown sample format: %q (supported: s16le s16be s24le s24be s32le s32be f32le f32be)", name)
}

// SampleSpec describes the shape of a PCM stream. It is a value type and
// never mutated after construction.
type SampleSpec struct {
	Format   Format
	Rate     int
	Channels int
}

// FrameBytes returns the size of one frame (one sample per channel).
func (s SampleSpec) FrameBytes() int {
	return s.Channels * s.Format.ByteWidth()
}

// Validate checks the spec for impossible values.
func (s SampleSpec) Validate() error {
	if _, ok := formatNames[s.Format]; !ok {
		return fmt.Errorf("invalid sample spec: unknown format %d", int(s.Format))
	}
	if s.Rate <= 0 {
		return fmt.Errorf("invalid sample spec: rate %d", s.Rate)
	}
	if s.Channels < 1 {
		return fmt.Errorf("invalid sample spec: %d channels", s.Channels)
	}
	return nil
}

// String renders the spec for logs, e.g. "s16le 48000Hz 2ch".
func (s SampleSpec) String() string {
	return fmt.Sprintf("%s %dHz %dch", s.Format, s.Rate, s.Channels)
}
