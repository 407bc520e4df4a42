package eos

import (
	"testing"

	"pgregory.net/rapid"
)

func TestParseCueTextFull(t *testing.T) {
	r := ParseCueText("1/5 House to Half 3.0 75%")
	if r.Reset {
		t.Fatal("unexpected reset")
	}
	if !r.HasList || r.List != 1 || r.Number != "5" {
		t.Errorf("list/number: got hasList=%v %d/%s", r.HasList, r.List, r.Number)
	}
	if r.Label != "House to Half" {
		t.Errorf("label: got %q", r.Label)
	}
	if r.Fade == nil || *r.Fade != 3.0 {
		t.Errorf("fade: got %v", r.Fade)
	}
	if r.Percent == nil || *r.Percent != 75 {
		t.Errorf("percent: got %v", r.Percent)
	}
}

func TestParseCueTextNoLabel(t *testing.T) {
	r := ParseCueText("2/10 5.0 0%")
	if r.Label != "" {
		t.Errorf("label: got %q, want empty", r.Label)
	}
	if r.Fade == nil || *r.Fade != 5.0 {
		t.Errorf("fade: got %v", r.Fade)
	}
	if r.Percent == nil || *r.Percent != 0 {
		t.Errorf("percent: got %v", r.Percent)
	}
}

func TestParseCueTextPendingForm(t *testing.T) {
	// Pending text has no percent suffix.
	r := ParseCueText("1/6 Lights Up 2.5")
	if r.Label != "Lights Up" {
		t.Errorf("label: got %q", r.Label)
	}
	if r.Fade == nil || *r.Fade != 2.5 {
		t.Errorf("fade: got %v", r.Fade)
	}
	if r.Percent != nil {
		t.Errorf("percent should be absent, got %d", *r.Percent)
	}
}

func TestParseCueTextFadeOnly(t *testing.T) {
	r := ParseCueText("1/6 2.5")
	if r.Label != "" {
		t.Errorf("label: got %q, want empty", r.Label)
	}
	if r.Fade == nil || *r.Fade != 2.5 {
		t.Errorf("fade: got %v", r.Fade)
	}
}

// TestParseCueTextLabelOnly verifies that a label whose last
// word is not numeric keeps the whole remainder.
func TestParseCueTextLabelOnly(t *testing.T) {
	r := ParseCueText("1/6 Warm wash stage left")
	if r.Label != "Warm wash stage left" {
		t.Errorf("label: got %q", r.Label)
	}
	if r.Fade != nil {
		t.Errorf("fade should be absent, got %v", *r.Fade)
	}
}

// TestParseCueTextNoList verifies the bare-number form used when the console
// omits the list; the caller supplies the contextual list.
func TestParseCueTextNoList(t *testing.T) {
	r := ParseCueText("7 Blackout 3.0")
	if r.HasList {
		t.Error("should not carry a list")
	}
	if r.Number != "7" || r.Label != "Blackout" {
		t.Errorf("got number=%q label=%q", r.Number, r.Label)
	}
}

func TestParseCueTextResetForms(t *testing.T) {
	for _, s := range []string{"", "   ", "0.0 ", "0.0 something", "0/0", "0/0 3.0"} {
		if r := ParseCueText(s); !r.Reset {
			t.Errorf("%q: expected reset, got %+v", s, r)
		}
	}
}

// TestParseCueTextNotReset guards the reset detection against
// over-matching: cue 0.5 and list 10 are real cues.
func TestParseCueTextNotReset(t *testing.T) {
	for _, s := range []string{"0.5 Preset 3.0", "10/0.5 Preset 3.0"} {
		if r := ParseCueText(s); r.Reset {
			t.Errorf("%q: should not be a reset", s)
		}
	}
}

// Test_cueTextTotal checks parsing is total: no input crashes, and every
// non-empty input yields either a reset or a tuple.
func Test_cueTextTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var in = rapid.String().Draw(t, "in")
		r := ParseCueText(in)
		if !r.Reset && r.Number == "" && r.Label == "" && len(in) > 0 {
			// A non-empty non-reset input must land somewhere; whitespace-only
			// strings count as resets and were handled above.
			for _, c := range in {
				if c != ' ' && c != '\t' && c != '\n' {
					t.Fatalf("input %q produced an empty parse", in)
				}
			}
		}
	})
}
