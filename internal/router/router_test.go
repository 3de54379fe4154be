// ABOUTME: Tests for the hysteretic mode state machine
// ABOUTME: Drives the router with crafted hit/miss chunks and fake sinks
package router

import (
	"errors"
	"testing"

	"github.com/spdif-tools/autodec-go/internal/sink"
	"github.com/spdif-tools/autodec-go/pkg/audio"
)

var testSpec = audio.SampleSpec{Format: audio.S16LE, Rate: 48000, Channels: 2}

// hitChunk carries an AC-3 preamble at a non-zero offset; missChunk is
// silence.
func hitChunk() []byte {
	chunk := make([]byte, 64)
	copy(chunk[12:], []byte{0x72, 0xF8, 0x1F, 0x4E, 0x01, 0x00, 0x10, 0x06})
	return chunk
}

func missChunk() []byte {
	return make([]byte, 64)
}

type recordSink struct {
	spec   audio.SampleSpec
	writes int
	closed bool
}

func (s *recordSink) Write(p []byte) error {
	s.writes++
	return nil
}

func (s *recordSink) Specs() audio.SampleSpec { return s.spec }

func (s *recordSink) Close() error {
	s.closed = true
	return nil
}

type recordSession struct {
	inner     sink.Sink
	writes    int
	finished  bool
	finishErr error
}

func (s *recordSession) Write(p []byte) error {
	s.writes++
	return nil
}

func (s *recordSession) Specs() audio.SampleSpec { return s.inner.Specs() }

func (s *recordSession) Finish() (sink.Sink, error) {
	s.finished = true
	if s.finishErr != nil {
		return nil, s.finishErr
	}
	return s.inner, nil
}

// harness collects everything the router opened.
type harness struct {
	pcmSinks  []*recordSink
	sessions  []*recordSession
	recovered []sink.Sink
	statuses  []Status
}

func (h *harness) config(detWindow int) Config {
	return Config{
		DetWindow: detWindow,
		OpenPCMSink: func() (sink.Sink, error) {
			s := &recordSink{spec: testSpec}
			h.pcmSinks = append(h.pcmSinks, s)
			return s, nil
		},
		OpenSession: func(recovered sink.Sink) (Session, error) {
			h.recovered = append(h.recovered, recovered)
			inner := recovered
			if inner == nil {
				inner = &recordSink{spec: testSpec}
			}
			s := &recordSession{inner: inner}
			h.sessions = append(h.sessions, s)
			return s, nil
		},
		Observer: func(st Status) {
			h.statuses = append(h.statuses, st)
		},
	}
}

func feed(t *testing.T, r *Router, chunks ...[]byte) {
	t.Helper()
	for i, c := range chunks {
		if err := r.HandleChunk(c); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}
}

func TestUnknownHitPreemptsMissCounter(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(3))
	if err != nil {
		t.Fatal(err)
	}

	feed(t, r, missChunk(), missChunk(), hitChunk())

	if r.Mode() != ModeCompressed {
		t.Errorf("expected compressed mode, got %v", r.Mode())
	}
	if len(h.pcmSinks) != 0 {
		t.Error("passthrough sink opened despite detection")
	}
	if len(h.sessions) != 1 || h.sessions[0].writes != 1 {
		t.Errorf("expected the hit chunk forwarded to one session, got %+v", h.sessions)
	}
}

func TestUnknownBecomesPCMAfterWindow(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(3))
	if err != nil {
		t.Fatal(err)
	}

	feed(t, r, missChunk(), missChunk())
	if r.Mode() != ModeUnknown {
		t.Fatalf("mode switched before the window filled: %v", r.Mode())
	}
	if len(h.pcmSinks) != 0 {
		t.Fatal("sink opened too early")
	}

	feed(t, r, missChunk())
	if r.Mode() != ModePCM {
		t.Errorf("expected pcm mode after 3rd miss, got %v", r.Mode())
	}
	if len(h.pcmSinks) != 1 || h.pcmSinks[0].writes != 1 {
		t.Errorf("expected the transition chunk written to the new sink")
	}
}

func TestCompressedHysteresis(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(2))
	if err != nil {
		t.Fatal(err)
	}

	feed(t, r, hitChunk(), missChunk())
	if r.Mode() != ModeCompressed {
		t.Fatalf("reverted after a single miss: %v", r.Mode())
	}
	// The trailing miss chunk still goes to the decoder to help it flush.
	if h.sessions[0].writes != 2 {
		t.Errorf("expected 2 chunks forwarded to session, got %d", h.sessions[0].writes)
	}

	feed(t, r, missChunk())
	if r.Mode() != ModePCM {
		t.Errorf("expected pcm after 2 consecutive misses, got %v", r.Mode())
	}
	if !h.sessions[0].finished {
		t.Error("session not finished on reversion")
	}
	if len(h.pcmSinks) != 1 || h.pcmSinks[0].writes != 1 {
		t.Error("reversion chunk not forwarded to passthrough sink")
	}
}

func TestPCMHitSwitchesImmediately(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(3))
	if err != nil {
		t.Fatal(err)
	}

	// Establish PCM, accumulate some miss history, then hit.
	feed(t, r, missChunk(), missChunk(), missChunk(), missChunk(), hitChunk())

	if r.Mode() != ModeCompressed {
		t.Errorf("expected immediate switch to compressed, got %v", r.Mode())
	}
	if !h.pcmSinks[0].closed {
		t.Error("passthrough sink not closed on switch")
	}
	if len(h.sessions) != 1 || h.sessions[0].writes != 1 {
		t.Error("hit chunk not forwarded to the new session")
	}
}

func TestRecoveredSinkReusedAcrossSessions(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(2))
	if err != nil {
		t.Fatal(err)
	}

	// First session opens fresh.
	feed(t, r, hitChunk())
	if h.recovered[0] != nil {
		t.Error("first session should have no recovered sink")
	}
	first := h.sessions[0].inner

	// Revert to PCM, then detect again: the second session must be
	// offered the sink the first one handed back.
	feed(t, r, missChunk(), missChunk(), hitChunk())
	if len(h.sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(h.sessions))
	}
	if h.recovered[1] != first {
		t.Error("recovered sink not offered to the next session")
	}
}

func TestFinishErrorIsNotFatal(t *testing.T) {
	h := &harness{}
	cfg := h.config(1)
	base := cfg.OpenSession
	cfg.OpenSession = func(recovered sink.Sink) (Session, error) {
		s, err := base(recovered)
		if err != nil {
			return nil, err
		}
		s.(*recordSession).finishErr = errors.New("decoder blew up")
		return s, nil
	}

	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Hit opens the session; the next miss closes it with an error. The
	// router must carry on into PCM mode.
	feed(t, r, hitChunk(), missChunk())
	if r.Mode() != ModePCM {
		t.Errorf("expected pcm mode after failed finish, got %v", r.Mode())
	}

	// And a new detection opens a fresh session with nothing recovered.
	feed(t, r, hitChunk())
	if len(h.sessions) != 2 {
		t.Fatalf("expected a second session, got %d", len(h.sessions))
	}
	if h.recovered[1] != nil {
		t.Error("failed session must not hand a sink to the next one")
	}
}

func TestObserverCounters(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(2))
	if err != nil {
		t.Fatal(err)
	}

	feed(t, r, missChunk(), missChunk(), hitChunk(), missChunk(), missChunk())

	last := h.statuses[len(h.statuses)-1]
	if last.Chunks != 5 {
		t.Errorf("expected 5 chunks seen, got %d", last.Chunks)
	}
	if last.Sessions != 1 {
		t.Errorf("expected 1 session, got %d", last.Sessions)
	}
	// 1 hit + 1 warm miss into the session; 1 chunk on PCM entry from
	// Unknown, 1 on reversion.
	if last.CompressedChunks != 2 {
		t.Errorf("expected 2 compressed chunks, got %d", last.CompressedChunks)
	}
	if last.PCMChunks != 2 {
		t.Errorf("expected 2 pcm chunks, got %d", last.PCMChunks)
	}
	if last.LastPreamble == nil || last.LastPreamble.LengthCode != 0x0610 {
		t.Error("last preamble not recorded")
	}
}

func TestCloseFinishesOpenSession(t *testing.T) {
	h := &harness{}
	r, err := New(h.config(2))
	if err != nil {
		t.Fatal(err)
	}

	feed(t, r, hitChunk())
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.sessions[0].finished {
		t.Error("open session not finished by Close")
	}
	if rs, ok := h.sessions[0].inner.(*recordSink); ok && !rs.closed {
		t.Error("recovered sink not closed by Close")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	h := &harness{}
	cfg := h.config(0)
	if _, err := New(cfg); err == nil {
		t.Error("expected error for zero detection window")
	}

	cfg = h.config(2)
	cfg.OpenPCMSink = nil
	if _, err := New(cfg); err == nil {
		t.Error("expected error for missing opener")
	}
}
