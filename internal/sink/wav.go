// ABOUTME: WAV recorder sink that tees audio into a .wav file
// ABOUTME: Converts raw PCM bytes to samples for the go-audio encoder
package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// WAVTee forwards every write to an inner sink and records a copy into a
// WAV file. Only integer PCM formats can be recorded; WAV float support is
// out of scope here.
type WAVTee struct {
	inner Sink
	spec  audio.SampleSpec
	file  *os.File
	enc   *wav.Encoder
}

// NewWAVTee opens path for recording and wraps inner. The recording spec
// is the inner sink's spec.
func NewWAVTee(inner Sink, path string) (*WAVTee, error) {
	spec := inner.Specs()
	if spec.Format.IsFloat() {
		return nil, fmt.Errorf("wav recording does not support float format %s", spec.Format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file %s: %w", path, err)
	}

	bitDepth := spec.Format.ByteWidth() * 8
	enc := wav.NewEncoder(f, spec.Rate, bitDepth, spec.Channels, 1)

	log.Printf("Recording to %s (%s)", path, spec)

	return &WAVTee{inner: inner, spec: spec, file: f, enc: enc}, nil
}

// Write records p and forwards it to the inner sink.
func (w *WAVTee) Write(p []byte) error {
	samples, err := bytesToSamples(p, w.spec.Format)
	if err != nil {
		return err
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: w.spec.Channels, SampleRate: w.spec.Rate},
		Data:           samples,
		SourceBitDepth: w.spec.Format.ByteWidth() * 8,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	return w.inner.Write(p)
}

// Specs returns the inner sink's spec.
func (w *WAVTee) Specs() audio.SampleSpec {
	return w.spec
}

// Close finalizes the WAV header and closes the inner sink if it is
// closable.
func (w *WAVTee) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if c, ok := w.inner.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	return fileErr
}

// Inner returns the wrapped sink.
func (w *WAVTee) Inner() Sink {
	return w.inner
}

// bytesToSamples decodes raw integer PCM bytes into one int per sample.
func bytesToSamples(p []byte, f audio.Format) ([]int, error) {
	width := f.ByteWidth()
	if len(p)%width != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of sample width %d", len(p), width)
	}
	samples := make([]int, len(p)/width)

	switch f {
	case audio.S16LE:
		for i := range samples {
			samples[i] = int(int16(binary.LittleEndian.Uint16(p[i*2:])))
		}
	case audio.S16BE:
		for i := range samples {
			samples[i] = int(int16(binary.BigEndian.Uint16(p[i*2:])))
		}
	case audio.S24LE:
		for i := range samples {
			samples[i] = signExtend24(uint32(p[i*3]) | uint32(p[i*3+1])<<8 | uint32(p[i*3+2])<<16)
		}
	case audio.S24BE:
		for i := range samples {
			samples[i] = signExtend24(uint32(p[i*3])<<16 | uint32(p[i*3+1])<<8 | uint32(p[i*3+2]))
		}
	case audio.S32LE:
		for i := range samples {
			samples[i] = int(int32(binary.LittleEndian.Uint32(p[i*4:])))
		}
	case audio.S32BE:
		for i := range samples {
			samples[i] = int(int32(binary.BigEndian.Uint32(p[i*4:])))
		}
	default:
		return nil, fmt.Errorf("cannot convert %s samples", f)
	}
	return samples, nil
}

func signExtend24(v uint32) int {
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int(int32(v))
}
