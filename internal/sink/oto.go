// ABOUTME: Oto-based playback sink
// ABOUTME: Streams 16-bit PCM through a persistent oto player fed by a pipe
package sink

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

// otoPlayer is the slice of oto.Player the sink drives.
type otoPlayer interface {
	Play()
	Close() error
}

// oto allows exactly one context per process, so the context is created on
// first open and shared by every subsequent sink. Each sink gets its own
// pipe-fed player. A later open with a different rate or channel count
// keeps the existing context; oto cannot reinitialize.
var (
	otoMu    sync.Mutex
	otoCtx   *oto.Context
	otoRate  int
	otoChans int

	otoNewContext = func(rate, channels int) (*oto.Context, error) {
		op := &oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, err
		}
		<-readyChan
		return ctx, nil
	}
	otoNewPlayer = func(ctx *oto.Context, r io.Reader) otoPlayer {
		return ctx.NewPlayer(r)
	}
)

// Oto plays audio through the oto library. Oto only renders signed 16-bit
// little-endian, so the sink rejects every other format at open time.
type Oto struct {
	spec       audio.SampleSpec
	player     otoPlayer
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
}

// OpenOto creates an oto-backed playback sink on the process-wide context.
func OpenOto(spec audio.SampleSpec) (*Oto, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Format != audio.S16LE {
		return nil, fmt.Errorf("oto engine only supports s16le output, got %s", spec.Format)
	}

	otoMu.Lock()
	if otoCtx == nil {
		ctx, err := otoNewContext(spec.Rate, spec.Channels)
		if err != nil {
			otoMu.Unlock()
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		otoCtx = ctx
		otoRate = spec.Rate
		otoChans = spec.Channels
		log.Printf("Playback initialized: %s (oto)", spec)
	} else if otoRate != spec.Rate || otoChans != spec.Channels {
		log.Printf("Warning: format change detected (%dHz %dch -> %dHz %dch) but oto doesn't support reinitialization. Continuing with existing context.",
			otoRate, otoChans, spec.Rate, spec.Channels)
	}
	ctx := otoCtx
	otoMu.Unlock()

	pr, pw := io.Pipe()
	player := otoNewPlayer(ctx, pr)
	player.Play()

	return &Oto{
		spec:       spec,
		player:     player,
		pipeReader: pr,
		pipeWriter: pw,
	}, nil
}

// Write streams audio bytes to the player, blocking until consumed.
func (o *Oto) Write(p []byte) error {
	if _, err := o.pipeWriter.Write(p); err != nil {
		return fmt.Errorf("oto pipe write failed: %w", err)
	}
	return nil
}

// Specs returns the spec the sink was opened with.
func (o *Oto) Specs() audio.SampleSpec {
	return o.spec
}

// Close releases the player and pipe. The shared context stays up so the
// next mode transition can open a fresh sink.
func (o *Oto) Close() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	return nil
}
