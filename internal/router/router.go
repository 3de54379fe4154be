// ABOUTME: Hysteretic mode state machine driving the main routing loop
// ABOUTME: Classifies chunks via the detector and manages sink sessions
package router

import (
	"fmt"
	"io"
	"log"

	"github.com/spdif-tools/autodec-go/internal/sink"
	"github.com/spdif-tools/autodec-go/pkg/spdif"
)

// Mode is the router's classification of the input stream.
type Mode int

const (
	ModeUnknown Mode = iota
	ModePCM
	ModeCompressed
)

func (m Mode) String() string {
	switch m {
	case ModeUnknown:
		return "unknown"
	case ModePCM:
		return "pcm"
	case ModeCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Session is an open decoding session: a sink for compressed bytes that
// hands its wrapped sink back when finished.
type Session interface {
	sink.Sink
	Finish() (sink.Sink, error)
}

// Status is a per-chunk snapshot for observers (logging, TUI).
type Status struct {
	Mode             Mode
	MissStreak       int
	Chunks           int64
	PCMChunks        int64
	CompressedChunks int64
	Sessions         int64
	LastPreamble     *spdif.Preamble
}

// Config wires the router to its collaborators. The router owns sink
// lifecycle at mode-transition boundaries through the opener callbacks.
type Config struct {
	// DetWindow is the hysteresis threshold: consecutive undetected
	// chunks required before leaving Unknown or Compressed.
	DetWindow int

	// OpenPCMSink opens the passthrough destination when entering PCM
	// mode.
	OpenPCMSink func() (sink.Sink, error)

	// OpenSession opens a decoding session when entering Compressed
	// mode. recovered, when non-nil, is the sink handed back by the
	// previous session's Finish and may be reused instead of opening a
	// fresh destination.
	OpenSession func(recovered sink.Sink) (Session, error)

	// Observer, when set, receives a status snapshot after every chunk.
	Observer func(Status)
}

// Router applies the asymmetric hysteresis rules: a single detected
// preamble switches to Compressed immediately (compressed data played as
// PCM is loud noise), while leaving Compressed requires DetWindow
// consecutive misses (compressed streams may legitimately pause between
// bursts).
type Router struct {
	cfg       Config
	mode      Mode
	missStr   int
	pcm       sink.Sink
	session   Session
	recovered sink.Sink

	chunks           int64
	pcmChunks        int64
	compressedChunks int64
	sessions         int64
	lastPreamble     *spdif.Preamble
}

// New creates a router in the Unknown mode.
func New(cfg Config) (*Router, error) {
	if cfg.DetWindow <= 0 {
		return nil, fmt.Errorf("detection window must be positive, got %d", cfg.DetWindow)
	}
	if cfg.OpenPCMSink == nil || cfg.OpenSession == nil {
		return nil, fmt.Errorf("router requires both sink openers")
	}
	return &Router{cfg: cfg, mode: ModeUnknown}, nil
}

// Mode returns the current classification.
func (r *Router) Mode() Mode {
	return r.mode
}

// HandleChunk classifies one fixed-size input chunk and routes it. The
// detector runs once against the entire chunk.
func (r *Router) HandleChunk(chunk []byte) error {
	r.chunks++
	pre, detected := spdif.FindPreamble(chunk)
	if detected {
		p := pre
		r.lastPreamble = &p
	}

	var err error
	switch r.mode {
	case ModeUnknown:
		err = r.handleUnknown(chunk, detected)
	case ModePCM:
		err = r.handlePCM(chunk, detected)
	case ModeCompressed:
		err = r.handleCompressed(chunk, detected)
	}
	if err != nil {
		return err
	}

	if r.cfg.Observer != nil {
		r.cfg.Observer(Status{
			Mode:             r.mode,
			MissStreak:       r.missStr,
			Chunks:           r.chunks,
			PCMChunks:        r.pcmChunks,
			CompressedChunks: r.compressedChunks,
			Sessions:         r.sessions,
			LastPreamble:     r.lastPreamble,
		})
	}
	return nil
}

func (r *Router) handleUnknown(chunk []byte, detected bool) error {
	if detected {
		log.Printf("Detected IEC 61937 (%s), switching to compressed decode", r.lastPreamble.StreamType)
		return r.enterCompressed(chunk)
	}

	r.missStr++
	if r.missStr < r.cfg.DetWindow {
		// No established mode yet; the chunk cannot be routed safely.
		return nil
	}

	log.Printf("No IEC 61937 preamble in %d chunks, assuming PCM", r.missStr)
	return r.enterPCM(chunk)
}

func (r *Router) handlePCM(chunk []byte, detected bool) error {
	if detected {
		log.Printf("Detected IEC 61937 (%s), switching PCM -> compressed decode", r.lastPreamble.StreamType)
		r.closePCMSink()
		return r.enterCompressed(chunk)
	}

	r.pcmChunks++
	return r.pcm.Write(chunk)
}

func (r *Router) handleCompressed(chunk []byte, detected bool) error {
	if detected {
		r.missStr = 0
		r.compressedChunks++
		return r.session.Write(chunk)
	}

	r.missStr++
	if r.missStr < r.cfg.DetWindow {
		// Still push trailing chunks; they help the decoder flush.
		r.compressedChunks++
		return r.session.Write(chunk)
	}

	log.Printf("Lost IEC 61937 after %d chunks, switching to PCM", r.missStr)
	recovered, err := r.session.Finish()
	r.session = nil
	if err != nil {
		// Session-level failure: the state machine keeps going and will
		// open a fresh session on the next detection.
		log.Printf("Decoder session ended with error: %v", err)
	} else {
		r.recovered = recovered
	}
	return r.enterPCM(chunk)
}

// enterCompressed opens a decoder session and forwards the hit chunk.
func (r *Router) enterCompressed(chunk []byte) error {
	session, err := r.cfg.OpenSession(r.recovered)
	if err != nil {
		return fmt.Errorf("open decoder session: %w", err)
	}
	r.recovered = nil
	r.session = session
	r.sessions++
	r.mode = ModeCompressed
	r.missStr = 0

	r.compressedChunks++
	return r.session.Write(chunk)
}

// enterPCM opens the passthrough sink and forwards the current chunk.
func (r *Router) enterPCM(chunk []byte) error {
	s, err := r.cfg.OpenPCMSink()
	if err != nil {
		return fmt.Errorf("open passthrough sink: %w", err)
	}
	r.pcm = s
	r.mode = ModePCM
	r.missStr = 0

	r.pcmChunks++
	return r.pcm.Write(chunk)
}

func (r *Router) closePCMSink() {
	if r.pcm == nil {
		return
	}
	if c, ok := r.pcm.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("Closing passthrough sink: %v", err)
		}
	}
	r.pcm = nil
}

// Close winds down whatever the router currently holds: an open decoder
// session is finished, and closable sinks are closed.
func (r *Router) Close() error {
	var firstErr error

	if r.session != nil {
		recovered, err := r.session.Finish()
		r.session = nil
		if err != nil {
			firstErr = fmt.Errorf("finish decoder session: %w", err)
		} else {
			r.recovered = recovered
		}
	}

	for _, s := range []sink.Sink{r.pcm, r.recovered} {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	r.pcm = nil
	r.recovered = nil
	return firstErr
}
