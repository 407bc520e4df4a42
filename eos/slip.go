package eos

import "bytes"

// SLIP framing (RFC 1055) as used by the console's TCP OSC mode. Each OSC
// packet is terminated with END; END and ESC bytes inside the payload are
// escaped with ESC ESC_END / ESC ESC_ESC.
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// slipEncode wraps a single packet for the wire. The terminating END is
// appended; no leading END is written.
func slipEncode(in []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(in) + 2)

	for _, b := range in {
		switch b {
		case slipEnd:
			buf.WriteByte(slipEsc)
			buf.WriteByte(slipEscEnd)
		case slipEsc:
			buf.WriteByte(slipEsc)
			buf.WriteByte(slipEscEsc)
		default:
			buf.WriteByte(b)
		}
	}

	buf.WriteByte(slipEnd)
	return buf.Bytes()
}

// slipDecoder accumulates raw TCP bytes and yields complete de-escaped
// packets. A TCP segment may carry several packets, or a fraction of one;
// state survives across Feed calls.
type slipDecoder struct {
	buf     bytes.Buffer
	escaped bool
}

// Feed consumes a chunk of stream bytes and returns the packets completed by
// it, in order. Empty frames (consecutive END bytes, or a leading END sent by
// peers that delimit on both sides) are skipped.
func (d *slipDecoder) Feed(data []byte) [][]byte {
	var frames [][]byte

	for _, b := range data {
		if d.escaped {
			switch b {
			case slipEscEnd:
				d.buf.WriteByte(slipEnd)
			case slipEscEsc:
				d.buf.WriteByte(slipEsc)
			default:
				// Protocol violation; keep the byte rather than lose data.
				d.buf.WriteByte(b)
			}
			d.escaped = false
			continue
		}

		switch b {
		case slipEsc:
			d.escaped = true
		case slipEnd:
			if d.buf.Len() > 0 {
				frame := make([]byte, d.buf.Len())
				copy(frame, d.buf.Bytes())
				frames = append(frames, frame)
				d.buf.Reset()
			}
		default:
			d.buf.WriteByte(b)
		}
	}

	return frames
}
