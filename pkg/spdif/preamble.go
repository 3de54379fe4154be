// ABOUTME: IEC 61937 burst preamble detection and parsing
// ABOUTME: Scans byte buffers for the Pa/Pb sync pair and decodes Pc/Pd
package spdif

import (
	"encoding/binary"
	"fmt"
)

// IEC 61937 preamble sync words. The transport stores each 16-bit word
// little-endian, so on the wire Pa reads 72 F8 and Pb reads 1F 4E.
const (
	PaSync = 0xF872
	PbSync = 0x4E1F
)

// Pc (16-bit) bit layout:
//
//	[6:0]   data type
//	[7]     error flag
//	[12:8]  type-dependent info
//	[15:13] stream number
const (
	pcTypeMask = 0x007F
	pcErrMask  = 0x0080
	pcInfoMask = 0x1F00
	pcStrmMask = 0xE000

	pcErrShift  = 7
	pcInfoShift = 8
	pcStrmShift = 13
)

// StreamType is the burst data type carried in Pc[6:0]. Codes other than
// the ones named here are preserved raw.
type StreamType uint8

const (
	StreamAc3  StreamType = 0x01
	StreamEAc3 StreamType = 0x15
)

// Known reports whether the data type is one this package understands.
func (t StreamType) Known() bool {
	return t == StreamAc3 || t == StreamEAc3
}

func (t StreamType) String() string {
	switch t {
	case StreamAc3:
		return "AC-3"
	case StreamEAc3:
		return "E-AC-3"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(t))
	}
}

// Preamble is a parsed IEC 61937 burst header. Values are produced fresh
// per detection and never mutated.
type Preamble struct {
	StreamType   StreamType // Pc[6:0]
	Error        bool       // Pc[7]
	Info         uint8      // Pc[12:8], width depends on the data type
	StreamNumber uint8      // Pc[15:13]
	LengthCode   uint16     // raw Pd, unit depends on the data type
}

// PayloadBytes returns the burst payload length in bytes. For AC-3 the
// length code is in bits; the division truncates when the code is not a
// multiple of 8. For E-AC-3 it is already in bytes. For unknown data
// types no length is known.
func (p Preamble) PayloadBytes() (int, bool) {
	switch p.StreamType {
	case StreamAc3:
		return int(p.LengthCode) / 8, true
	case StreamEAc3:
		return int(p.LengthCode), true
	default:
		return 0, false
	}
}

// FindPreamble scans buf for an IEC 61937 preamble at any byte offset and
// returns the first one parsed. Chunk boundaries do not line up with burst
// boundaries, so the sync pair must be matched anywhere in the buffer, not
// just at offset zero. Buffers shorter than 8 bytes never match.
func FindPreamble(buf []byte) (Preamble, bool) {
	for i := 0; i+8 <= len(buf); i++ {
		pa := binary.LittleEndian.Uint16(buf[i:])
		pb := binary.LittleEndian.Uint16(buf[i+2:])
		if pa != PaSync || pb != PbSync {
			continue
		}

		pc := binary.LittleEndian.Uint16(buf[i+4:])
		pd := binary.LittleEndian.Uint16(buf[i+6:])

		return Preamble{
			StreamType:   StreamType(pc & pcTypeMask),
			Error:        pc&pcErrMask != 0,
			Info:         uint8((pc & pcInfoMask) >> pcInfoShift),
			StreamNumber: uint8((pc & pcStrmMask) >> pcStrmShift),
			LengthCode:   pd,
		}, true
	}
	return Preamble{}, false
}
