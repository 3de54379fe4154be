// ABOUTME: Tests for IEC 61937 preamble detection
// ABOUTME: Covers sync scanning at arbitrary offsets and Pc/Pd decoding
package spdif

import (
	"bytes"
	"testing"
)

// ac3Header is a valid preamble: Pa, Pb, Pc (data type 0x01, no error),
// Pd = 0x0610 (1552 bits).
var ac3Header = []byte{0x72, 0xF8, 0x1F, 0x4E, 0x01, 0x00, 0x10, 0x06}

func TestFindPreambleShortBuffer(t *testing.T) {
	for n := 0; n < 8; n++ {
		if _, ok := FindPreamble(ac3Header[:n]); ok {
			t.Errorf("found preamble in %d-byte buffer", n)
		}
	}
}

func TestFindPreambleNoSync(t *testing.T) {
	buf := bytes.Repeat([]byte{0xAA, 0x55}, 512)
	if _, ok := FindPreamble(buf); ok {
		t.Error("found preamble in noise")
	}

	// Pa alone is not enough.
	buf = append([]byte{0x72, 0xF8}, make([]byte, 14)...)
	if _, ok := FindPreamble(buf); ok {
		t.Error("found preamble with missing Pb")
	}
}

func TestFindPreambleDecodesAc3(t *testing.T) {
	p, ok := FindPreamble(ac3Header)
	if !ok {
		t.Fatal("preamble not found")
	}
	if p.StreamType != StreamAc3 {
		t.Errorf("expected AC-3, got %v", p.StreamType)
	}
	if p.Error {
		t.Error("expected error flag clear")
	}
	if p.LengthCode != 0x0610 {
		t.Errorf("expected length code 0x0610, got 0x%04X", p.LengthCode)
	}
	n, ok := p.PayloadBytes()
	if !ok {
		t.Fatal("expected known payload length")
	}
	if n != 194 {
		t.Errorf("expected 194 payload bytes, got %d", n)
	}
}

func TestFindPreambleAtOffset(t *testing.T) {
	buf := make([]byte, 64)
	copy(buf[5:], ac3Header)

	p, ok := FindPreamble(buf)
	if !ok {
		t.Fatal("preamble at offset 5 not found")
	}
	if p.StreamType != StreamAc3 || p.LengthCode != 0x0610 {
		t.Errorf("decoded fields wrong: %+v", p)
	}
}

func TestFindPreambleStopsAtFirstMatch(t *testing.T) {
	// A second preamble with a different length code must not override
	// the first.
	buf := make([]byte, 32)
	copy(buf, ac3Header)
	second := []byte{0x72, 0xF8, 0x1F, 0x4E, 0x01, 0x00, 0xFF, 0x00}
	copy(buf[16:], second)

	p, ok := FindPreamble(buf)
	if !ok {
		t.Fatal("preamble not found")
	}
	if p.LengthCode != 0x0610 {
		t.Errorf("expected first preamble, got length code 0x%04X", p.LengthCode)
	}
}

func TestPcFieldDecoding(t *testing.T) {
	// Pc = 0xA395: stream number 5 (bits 13-15), info 0x03 (bits 8-12),
	// error set (bit 7), data type 0x15 (bits 0-6).
	buf := []byte{0x72, 0xF8, 0x1F, 0x4E, 0x95, 0xA3, 0x00, 0x18}
	p, ok := FindPreamble(buf)
	if !ok {
		t.Fatal("preamble not found")
	}
	if p.StreamType != StreamEAc3 {
		t.Errorf("expected E-AC-3, got %v", p.StreamType)
	}
	if !p.Error {
		t.Error("expected error flag set")
	}
	if p.Info != 0x03 {
		t.Errorf("expected info 0x03, got 0x%02X", p.Info)
	}
	if p.StreamNumber != 5 {
		t.Errorf("expected stream number 5, got %d", p.StreamNumber)
	}
}

func TestEAc3PayloadBytesVerbatim(t *testing.T) {
	p := Preamble{StreamType: StreamEAc3, LengthCode: 1537}
	n, ok := p.PayloadBytes()
	if !ok || n != 1537 {
		t.Errorf("expected 1537 bytes, got %d (ok=%v)", n, ok)
	}
}

func TestAc3PayloadBytesTruncates(t *testing.T) {
	// 1555 bits is not byte aligned; the trailing partial byte is dropped.
	p := Preamble{StreamType: StreamAc3, LengthCode: 1555}
	n, ok := p.PayloadBytes()
	if !ok || n != 194 {
		t.Errorf("expected 194 bytes, got %d (ok=%v)", n, ok)
	}
}

func TestUnknownStreamTypePayload(t *testing.T) {
	p := Preamble{StreamType: StreamType(0x42), LengthCode: 100}
	if _, ok := p.PayloadBytes(); ok {
		t.Error("expected no payload length for unknown data type")
	}
	if p.StreamType.Known() {
		t.Error("expected unknown data type")
	}
}
