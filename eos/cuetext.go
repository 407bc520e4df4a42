package eos

import (
	"strconv"
	"strings"
)

// CueText is the parse result of an active/pending display string. The
// console's text format is under-specified: the label may contain spaces, the
// fade and percent suffixes may each be absent, and an empty or zeroed string
// means "no cue here".
type CueText struct {
	Reset   bool
	List    int
	HasList bool
	Number  string
	Label   string
	Fade    *float64
	Percent *int
}

// ParseCueText decodes one active/pending text payload. It is total: every
// input yields either a reset or a best-effort (list, cue, label, fade, pct)
// tuple. Inputs without a leading "<L>/" carry no list; the caller supplies
// the contextual list from the address or the outstanding poll.
func ParseCueText(text string) CueText {
	trimmed := strings.TrimSpace(text)
	// The "0.0 " check runs on the untrimmed text so its trailing space
	// survives.
	if trimmed == "" || strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "0.0 ") || strings.HasPrefix(trimmed, "0/0") {
		return CueText{Reset: true}
	}

	fields := strings.Fields(trimmed)
	head := fields[0]
	rest := fields[1:]

	var out CueText
	if i := strings.IndexByte(head, '/'); i >= 0 {
		list, okL := atoi(head[:i])
		num := head[i+1:]
		if okL && validNumber(num) {
			out.List = list
			out.HasList = true
			out.Number = num
		} else {
			// Not a list/cue pair after all; treat the whole string as label.
			out.Label = trimmed
			return out
		}
	} else if validNumber(head) {
		out.Number = head
	} else {
		out.Label = trimmed
		return out
	}

	// The remainder is tried as: label+fade+pct%, fade+pct%, label+fade,
	// fade, then label-only.
	n := len(rest)
	if n >= 2 {
		if pct, ok := parsePercent(rest[n-1]); ok {
			if fade, err := strconv.ParseFloat(rest[n-2], 64); err == nil {
				out.Percent = &pct
				out.Fade = &fade
				out.Label = strings.Join(rest[:n-2], " ")
				return out
			}
		}
	}
	if n >= 1 {
		if fade, err := strconv.ParseFloat(rest[n-1], 64); err == nil {
			out.Fade = &fade
			out.Label = strings.Join(rest[:n-1], " ")
			return out
		}
	}
	out.Label = strings.Join(rest, " ")
	return out
}

func parsePercent(s string) (int, bool) {
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, false
	}
	return n, true
}
