package eos

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestSlipEncodeEscapes verifies the escaping of END and ESC and the trailing
// frame terminator against a known vector.
func TestSlipEncodeEscapes(t *testing.T) {
	in := []byte{0xAA, 0xC0, 0xBB, 0xDB, 0xCC}
	want := []byte{0xAA, 0xDB, 0xDC, 0xBB, 0xDB, 0xDD, 0xCC, 0xC0}

	got := slipEncode(in)
	if !bytes.Equal(got, want) {
		t.Errorf("slipEncode: got % X, want % X", got, want)
	}
}

// TestSlipDecoderRoundTrip verifies that the decoder recovers the original
// payload from an encoded frame.
func TestSlipDecoderRoundTrip(t *testing.T) {
	in := []byte{0xAA, 0xC0, 0xBB, 0xDB, 0xCC}

	var dec slipDecoder
	frames := dec.Feed(slipEncode(in))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], in) {
		t.Errorf("round trip: got % X, want % X", frames[0], in)
	}
}

// Test_slipRoundTripIdentity checks encode-then-decode is the identity on
// arbitrary byte sequences, including ones full of END/ESC bytes.
func Test_slipRoundTripIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.SliceOf(rapid.Byte()).Draw(t, "in")
		if len(in) == 0 {
			return // empty frames are skipped by design
		}

		var dec slipDecoder
		frames := dec.Feed(slipEncode(in))

		assert.Len(t, frames, 1)
		assert.Equal(t, in, frames[0])
	})
}

// Test_slipSplitFeeds checks that frames split across arbitrary read
// boundaries reassemble, as happens with TCP segmentation.
func Test_slipSplitFeeds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "in")
		encoded := slipEncode(in)
		split := rapid.IntRange(0, len(encoded)).Draw(t, "split")

		var dec slipDecoder
		frames := dec.Feed(encoded[:split])
		frames = append(frames, dec.Feed(encoded[split:])...)

		assert.Len(t, frames, 1)
		assert.Equal(t, in, frames[0])
	})
}

// TestSlipMultipleFramesPerFeed verifies several packets in one TCP segment
// all come out, in order.
func TestSlipMultipleFramesPerFeed(t *testing.T) {
	a := []byte{0x01, 0x02}
	b := []byte{0xC0}
	c := []byte{0x03}

	var stream []byte
	stream = append(stream, slipEncode(a)...)
	stream = append(stream, slipEncode(b)...)
	stream = append(stream, slipEncode(c)...)

	var dec slipDecoder
	frames := dec.Feed(stream)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, want := range [][]byte{a, b, c} {
		if !bytes.Equal(frames[i], want) {
			t.Errorf("frame %d: got % X, want % X", i, frames[i], want)
		}
	}
}

// TestSlipLeadingEnd verifies tolerance of peers that delimit frames on both
// sides: a leading END produces no empty frame.
func TestSlipLeadingEnd(t *testing.T) {
	var dec slipDecoder
	frames := dec.Feed(append([]byte{slipEnd}, slipEncode([]byte{0x42})...))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0x42}) {
		t.Errorf("got % X, want 42", frames[0])
	}
}
