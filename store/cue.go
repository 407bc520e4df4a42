// Package store owns the annotated cue model and its on-disk show files.
// The console is authoritative for cue existence and timing fields; the
// user-owned annotations (notes, color, tags, page, image) live only here
// and must survive any sequence of refreshes.
package store

import (
	"strconv"
	"strings"
)

// DefaultColor marks "no user color".
const DefaultColor = "#ffffff"

// Key identifies a cue: list number, cue number (string, decimals allowed)
// and part number (0 = the main cue, 1..N = its parts).
type Key struct {
	List   int
	Number string
	Part   int
}

// Cue is one row of the mirrored cue database plus its annotations.
// JSON keys match the files written by earlier versions of the app.
type Cue struct {
	List   int    `json:"cueList"`
	Number string `json:"cueNumber"`
	Part   int    `json:"partNumber"`

	// Console-owned fields, overwritten on refresh.
	UID        string   `json:"uid,omitempty"`
	Label      string   `json:"label"`
	UpTime     *float64 `json:"upTime"`
	UpDelay    *float64 `json:"upDelay,omitempty"`
	DownTime   *float64 `json:"downTime,omitempty"`
	DownDelay  *float64 `json:"downDelay,omitempty"`
	FocusTime  *float64 `json:"focusTime,omitempty"`
	FocusDelay *float64 `json:"focusDelay,omitempty"`
	ColorTime  *float64 `json:"colorTime,omitempty"`
	ColorDelay *float64 `json:"colorDelay,omitempty"`
	BeamTime   *float64 `json:"beamTime,omitempty"`
	BeamDelay  *float64 `json:"beamDelay,omitempty"`
	Mark       string   `json:"mark,omitempty"`
	Block      string   `json:"block,omitempty"`
	Assert     string   `json:"assert,omitempty"`
	FollowTime *float64 `json:"followTime,omitempty"`
	HangTime   *float64 `json:"hangTime,omitempty"`
	PartCount  int      `json:"partCount,omitempty"`
	Scene      string   `json:"scene,omitempty"`
	SceneEnd   bool     `json:"sceneEnd,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
	FadeTime   *float64 `json:"fadeTime,omitempty"`

	// User-owned fields, never overwritten by console data.
	Notes     string   `json:"notes"`
	Color     string   `json:"color"`
	Tags      []string `json:"tags"`
	Page      string   `json:"page"`
	ImagePath string   `json:"imagePath,omitempty"`

	// Runtime-only: nil, "active" or "pending".
	LastSeen *string `json:"lastSeen,omitempty"`
}

// NewCue returns a cue with all user fields at their defaults.
func NewCue(k Key) *Cue {
	return &Cue{
		List:   k.List,
		Number: k.Number,
		Part:   k.Part,
		Color:  DefaultColor,
		Tags:   []string{},
	}
}

// Key returns the cue's identity triple.
func (c *Cue) Key() Key {
	return Key{List: c.List, Number: c.Number, Part: c.Part}
}

// CompareNumbers orders cue numbers numerically with decimal support
// ("9.5" < "10"), falling back to string order for unparseable input.
func CompareNumbers(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// Compare orders cues by list, then cue number, then part number.
func Compare(a, b *Cue) int {
	if a.List != b.List {
		if a.List < b.List {
			return -1
		}
		return 1
	}
	if n := CompareNumbers(a.Number, b.Number); n != 0 {
		return n
	}
	switch {
	case a.Part < b.Part:
		return -1
	case a.Part > b.Part:
		return 1
	}
	return 0
}

// CueTimes carries a full set of console timing fields for an upsert. A nil
// member means the console reports that component as not set; the whole
// struct is always written wholesale.
type CueTimes struct {
	Up         *float64
	UpDelay    *float64
	Down       *float64
	DownDelay  *float64
	Focus      *float64
	FocusDelay *float64
	Color      *float64
	ColorDelay *float64
	Beam       *float64
	BeamDelay  *float64
	Follow     *float64
	Hang       *float64
	Duration   *float64
}

// CueUpdate is a partial console-sourced update. Pointer fields distinguish
// "not carried by this update" (nil) from an explicit value, which matters
// for the always-overwrite set: mark/block/assert, scene, sceneEnd,
// partCount and the timing block clear to empty when the console reports
// empty, while label and uid only ever overwrite with non-empty values.
// User-owned fields are deliberately absent; console data can never touch
// them.
type CueUpdate struct {
	Label string
	UID   string

	Times *CueTimes

	Mark      *string
	Block     *string
	Assert    *string
	Scene     *string
	SceneEnd  *bool
	PartCount *int

	FadeTime *float64
}

// apply writes the update onto c per the overwrite rules.
func (u CueUpdate) apply(c *Cue) {
	if u.Label != "" {
		c.Label = u.Label
	}
	if u.UID != "" {
		c.UID = u.UID
	}
	if u.Times != nil {
		t := u.Times
		c.UpTime = t.Up
		c.UpDelay = t.UpDelay
		c.DownTime = t.Down
		c.DownDelay = t.DownDelay
		c.FocusTime = t.Focus
		c.FocusDelay = t.FocusDelay
		c.ColorTime = t.Color
		c.ColorDelay = t.ColorDelay
		c.BeamTime = t.Beam
		c.BeamDelay = t.BeamDelay
		c.FollowTime = t.Follow
		c.HangTime = t.Hang
		c.Duration = t.Duration
	}
	if u.Mark != nil {
		c.Mark = *u.Mark
	}
	if u.Block != nil {
		c.Block = *u.Block
	}
	if u.Assert != nil {
		c.Assert = *u.Assert
	}
	if u.Scene != nil {
		c.Scene = *u.Scene
	}
	if u.SceneEnd != nil {
		c.SceneEnd = *u.SceneEnd
	}
	if u.PartCount != nil {
		c.PartCount = *u.PartCount
	}
	if u.FadeTime != nil {
		c.FadeTime = u.FadeTime
	}
}
