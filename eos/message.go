// Package eos speaks the console's OSC dialect: framing over UDP or TCP/SLIP,
// decoding of the /eos/out/ address family into typed events, and builders
// for the /eos/get/ request addresses.
//
// The dialect is asymmetric. Replies carry no correlation ids, sub-messages
// for one request arrive out of order, and the same address family is reused
// for unrelated payloads, so everything downstream works off the typed events
// produced here — no other package inspects raw OSC arguments.
package eos

import (
	"math"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// Event is a decoded inbound console message. Exactly one of the concrete
// types below is returned per recognised message.
type Event interface {
	event()
}

// ShowName reports the title of the show file loaded on the console.
type ShowName struct {
	Name string
}

// Version reports the console software version.
type Version struct {
	Version string
}

// CueListCount reports how many cue lists exist.
type CueListCount struct {
	Count int
}

// CueListDiscovered reports one cue list's existence (reply to an indexed
// cue list request, or pushed when a list is created).
type CueListDiscovered struct {
	List int
}

// CueCount reports the number of cues in one list.
type CueCount struct {
	List  int
	Count int
}

// CueData carries the detail record for one cue (or cue part). Index and
// Total come from the trailing /list/<i>/<c> address segments.
type CueData struct {
	List   int
	Number string
	Part   int
	Index  int
	Total  int
	Fields CueFields
}

// CueNotify reports that cues changed on a list. Count is the list's new cue
// count taken from the address; Number is the first changed cue, when the
// console includes one.
type CueNotify struct {
	List   int
	Number string
	Count  int
}

// ActiveCueText is the display text for the running cue. List is only valid
// when HasList is true (the console omits the list on the unscoped form).
type ActiveCueText struct {
	List    int
	HasList bool
	Text    string
}

// PendingCueText is the display text for the next cue to fire.
type PendingCueText struct {
	List    int
	HasList bool
	Text    string
}

// ActiveCue reports the running cue of one list by address only.
type ActiveCue struct {
	List   int
	Number string
}

// PendingCue reports the next cue of one list by address only.
type PendingCue struct {
	List   int
	Number string
}

// FaderConfig reports what a playback fader is bound to. Type 1 means a cue
// list, in which case TargetID is the list number.
type FaderConfig struct {
	Index    int
	Type     int
	TargetID int
	Label    string
}

func (ShowName) event()          {}
func (Version) event()           {}
func (CueListCount) event()      {}
func (CueListDiscovered) event() {}
func (CueCount) event()          {}
func (CueData) event()           {}
func (CueNotify) event()         {}
func (ActiveCueText) event()     {}
func (PendingCueText) event()    {}
func (ActiveCue) event()         {}
func (PendingCue) event()        {}
func (FaderConfig) event()       {}

// suppressed address facets: the console emits effect/action/link/curve
// sub-messages under cue addresses that must not be mistaken for the cue
// payload itself.
var suppressedFacets = []string{"/fx/", "/actions/", "/links/", "/curves/"}

// Parse decodes an inbound OSC message into a typed event. It returns nil
// for addresses outside the recognised family, suppressed sub-messages, and
// system (negative) cue lists. Parse never panics on malformed payloads; a
// message whose arguments do not match its address simply yields nil.
func Parse(msg *osc.Message) Event {
	if msg == nil || !strings.HasPrefix(msg.Address, "/eos/out/") {
		return nil
	}
	for _, f := range suppressedFacets {
		if strings.Contains(msg.Address, f) {
			return nil
		}
	}

	p := strings.Split(strings.TrimPrefix(msg.Address, "/"), "/")
	// p[0]=="eos", p[1]=="out" guaranteed by the prefix check.
	rest := p[2:]
	args := msg.Arguments

	switch {
	case matches(rest, "show", "name"):
		if s, ok := toString(arg(args, 0)); ok {
			return ShowName{Name: s}
		}

	case matches(rest, "get", "version"):
		if s, ok := toString(arg(args, 0)); ok {
			return Version{Version: s}
		}

	case matches(rest, "get", "cuelist", "count"):
		if n, ok := toInt(arg(args, 0)); ok {
			return CueListCount{Count: n}
		}

	case len(rest) == 6 && rest[0] == "get" && rest[1] == "cuelist" && rest[3] == "list":
		// /eos/out/get/cuelist/<n>/list/<i>/<c>
		if n, ok := atoi(rest[2]); ok && n >= 0 {
			return CueListDiscovered{List: n}
		}

	case len(rest) == 4 && rest[0] == "get" && rest[1] == "cue" && rest[3] == "count":
		if list, ok := atoi(rest[2]); ok {
			if list < 0 {
				return nil
			}
			if n, ok := toInt(arg(args, 0)); ok {
				return CueCount{List: list, Count: n}
			}
		}

	case len(rest) == 8 && rest[0] == "get" && rest[1] == "cue" && rest[5] == "list":
		// /eos/out/get/cue/<L>/<C>/<P>/list/<i>/<c>
		return parseCueData(rest[2], rest[3], rest[4], rest[6], rest[7], args)

	case len(rest) == 9 && rest[0] == "get" && rest[1] == "cuelist" && rest[3] == "cue" && rest[6] == "list":
		// /eos/out/get/cuelist/<L>/cue/<C>/<P>/list/<i>/<c>
		return parseCueData(rest[2], rest[4], rest[5], rest[7], rest[8], args)

	case len(rest) == 6 && rest[0] == "notify" && rest[1] == "cue" && rest[3] == "list":
		// /eos/out/notify/cue/<L>/list/<i>/<c>
		list, okL := atoi(rest[2])
		count, okC := atoi(rest[5])
		if !okL || !okC || list < 0 {
			return nil
		}
		ev := CueNotify{List: list, Count: count}
		if num, ok := toNumber(arg(args, 0)); ok {
			ev.Number = num
		}
		return ev

	case len(rest) >= 3 && (rest[0] == "active" || rest[0] == "pending") && rest[1] == "cue" && rest[len(rest)-1] == "text":
		// /eos/out/active/cue/text or /eos/out/active/cue/<L>/text
		text, _ := toString(arg(args, 0))
		var list int
		hasList := false
		if len(rest) == 4 {
			l, ok := atoi(rest[2])
			if !ok {
				return nil
			}
			if l < 0 {
				return nil
			}
			list, hasList = l, true
		} else if len(rest) != 3 {
			return nil
		}
		if rest[0] == "active" {
			return ActiveCueText{List: list, HasList: hasList, Text: text}
		}
		return PendingCueText{List: list, HasList: hasList, Text: text}

	case len(rest) >= 4 && (rest[0] == "active" || rest[0] == "pending") && rest[1] == "cue":
		// /eos/out/active/cue/<L>/<C>[...] — no /text suffix.
		list, ok := atoi(rest[2])
		if !ok || list < 0 {
			return nil
		}
		num := rest[3]
		if !validNumber(num) {
			return nil
		}
		if rest[0] == "active" {
			return ActiveCue{List: list, Number: num}
		}
		return PendingCue{List: list, Number: num}

	case len(rest) >= 3 && rest[0] == "get" && rest[1] == "fader" && rest[len(rest)-1] == "config":
		return parseFaderConfig(rest, args)
	}

	return nil
}

// parseCueData decodes the address segments and argument vector of a cue
// detail message.
func parseCueData(listS, numS, partS, idxS, totS string, args []interface{}) Event {
	list, okL := atoi(listS)
	part, okP := atoi(partS)
	idx, okI := atoi(idxS)
	tot, okT := atoi(totS)
	if !okL || !okP || !okI || !okT || !validNumber(numS) {
		return nil
	}
	if list < 0 {
		// Reserved system lists.
		return nil
	}
	return CueData{
		List:   list,
		Number: numS,
		Part:   part,
		Index:  idx,
		Total:  tot,
		Fields: decodeCueArgs(args),
	}
}

func parseFaderConfig(rest []string, args []interface{}) Event {
	idx, ok := atoi(rest[2])
	if !ok {
		return nil
	}
	ev := FaderConfig{Index: idx}
	// The console sends either (index, type, target, label) or just
	// (type, target, label) with the index in the address.
	base := 0
	if len(args) >= 4 {
		if i, ok := toInt(arg(args, 0)); ok {
			ev.Index = i
		}
		base = 1
	}
	if t, ok := toInt(arg(args, base)); ok {
		ev.Type = t
	}
	if id, ok := toInt(arg(args, base+1)); ok {
		ev.TargetID = id
	}
	if s, ok := toString(arg(args, base+2)); ok {
		ev.Label = s
	}
	return ev
}

// CueFields is the console-owned payload of a cue detail record. Nil time
// fields mean "not set" on the console.
type CueFields struct {
	UID        string
	Label      string
	UpTime     *float64
	UpDelay    *float64
	DownTime   *float64
	DownDelay  *float64
	FocusTime  *float64
	FocusDelay *float64
	ColorTime  *float64
	ColorDelay *float64
	BeamTime   *float64
	BeamDelay  *float64
	Mark       string
	Block      string
	Assert     string
	FollowTime *float64
	HangTime   *float64
	PartCount  int
	Scene      string
	SceneEnd   bool
	Duration   *float64
}

// decodeCueArgs maps the positional argument vector of a cue record.
// Positions 22–25 and 27 have no documented meaning and are skipped.
func decodeCueArgs(args []interface{}) CueFields {
	var f CueFields

	f.UID, _ = toString(arg(args, 1))
	f.Label, _ = toString(arg(args, 2))

	f.UpTime = centi(arg(args, 3))
	f.UpDelay = centi(arg(args, 4))
	f.DownTime = centi(arg(args, 5))
	f.DownDelay = centi(arg(args, 6))
	f.FocusTime = centi(arg(args, 7))
	f.FocusDelay = centi(arg(args, 8))
	f.ColorTime = centi(arg(args, 9))
	f.ColorDelay = centi(arg(args, 10))
	f.BeamTime = centi(arg(args, 11))
	f.BeamDelay = centi(arg(args, 12))

	f.Mark, _ = toString(arg(args, 16))
	f.Block, _ = toString(arg(args, 17))
	f.Assert, _ = toString(arg(args, 18))

	f.FollowTime = centi(arg(args, 20))
	f.HangTime = centi(arg(args, 21))

	if n, ok := toInt(arg(args, 26)); ok {
		f.PartCount = n
	}
	f.Scene, _ = toString(arg(args, 28))
	if b, ok := toBool(arg(args, 29)); ok {
		f.SceneEnd = b
	}

	f.Duration = maxDuration(f.UpTime, f.DownTime, f.FocusTime, f.ColorTime, f.BeamTime)
	return f
}

// maxDuration returns the largest of the given durations, or nil when none
// are set.
func maxDuration(ds ...*float64) *float64 {
	var out *float64
	for _, d := range ds {
		if d == nil {
			continue
		}
		if out == nil || *d > *out {
			v := *d
			out = &v
		}
	}
	return out
}

// centi converts a console time argument to seconds as round(x/10)/100,
// keeping two decimals (500 decodes to 0.5). Negative values (the console's "not set") and non-numeric arguments
// decode to nil.
func centi(v interface{}) *float64 {
	n, ok := toFloat(v)
	if !ok || n < 0 {
		return nil
	}
	secs := math.Round(n/10) / 100
	return &secs
}

// ---------------------------------------------------------------------------
// Argument coercion. OSC integers arrive as int32 or int64 depending on the
// type tag; counts occasionally come as floats. Coerce rather than assert.
// ---------------------------------------------------------------------------

func arg(args []interface{}, i int) interface{} {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int32:
		return b != 0, true
	case int64:
		return b != 0, true
	case float32:
		return b != 0, true
	case float64:
		return b != 0, true
	}
	return false, false
}

// toNumber renders a numeric or string argument as a cue number string.
func toNumber(v interface{}) (string, bool) {
	switch n := v.(type) {
	case string:
		if n == "" {
			return "", false
		}
		return n, true
	case int32:
		return strconv.Itoa(int(n)), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

// matches reports whether rest equals the given segments exactly.
func matches(rest []string, want ...string) bool {
	if len(rest) != len(want) {
		return false
	}
	for i := range want {
		if rest[i] != want[i] {
			return false
		}
	}
	return true
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// validNumber reports whether s looks like a cue number (decimal allowed).
func validNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
