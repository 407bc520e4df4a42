package main

import (
	"time"

	"github.com/hypebeast/go-osc/osc"

	"aboutcue/server/eos"
	"aboutcue/server/store"
)

// Poll cadence: one outstanding request at a time, dropped after 600 ms so
// a console that never answers cannot wedge the slot.
const (
	pollInterval = 500 * time.Millisecond
	pollTimeout  = 600 * time.Millisecond
)

type pollReq struct {
	list    int
	pending bool
}

// pollState is the active/pending polling fallback for consoles (or
// transports) that do not push. Requests cycle through every discovered
// list; responses after the timeout are still consumed by the normal
// parser, the timeout only frees the slot.
type pollState struct {
	queue    []pollReq
	inflight *pollReq
	deadline time.Time
}

func (e *Engine) resetPollLocked() {
	e.poll = pollState{}
}

// PollTick issues at most one poll. main runs it every 500 ms; it goes
// inert while disconnected or while a refresh owns the wire.
func (e *Engine) PollTick() {
	e.mu.Lock()
	if !e.connected || e.refresh.phase != refreshIdle {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()

	if e.poll.inflight != nil {
		if now.Before(e.poll.deadline) {
			e.mu.Unlock()
			return
		}
		// Timed out; drop it and advance.
		e.poll.inflight = nil
	}

	if len(e.poll.queue) == 0 {
		for _, l := range e.sortedListsLocked() {
			e.poll.queue = append(e.poll.queue, pollReq{list: l}, pollReq{list: l, pending: true})
		}
	}
	if len(e.poll.queue) == 0 {
		e.mu.Unlock()
		return
	}

	req := e.poll.queue[0]
	e.poll.queue = e.poll.queue[1:]
	e.poll.inflight = &req
	e.poll.deadline = now.Add(pollTimeout)

	var msg *osc.Message
	if req.pending {
		msg = eos.GetPendingCue(req.list)
	} else {
		msg = eos.GetActiveCue(req.list)
	}
	e.mu.Unlock()

	e.send(msg)
}

// settlePollLocked frees the poll slot when a response matches the
// outstanding request, and returns the contextual list for unscoped text.
func (e *Engine) settlePollLocked(list int, hasList bool, kind string) (int, bool) {
	pending := kind == "pending"

	if e.poll.inflight != nil && e.poll.inflight.pending == pending &&
		(!hasList || e.poll.inflight.list == list) {
		ctx := e.poll.inflight.list
		e.poll.inflight = nil
		if !hasList {
			return ctx, true
		}
		return list, true
	}
	if hasList {
		return list, true
	}
	return 0, false
}

// handleCueMark applies one active/pending observation: clear the mark from
// the rest of the list, set it on (list, number, part 0), and feed the
// timing engine when the active cue moved.
func (e *Engine) handleCueMark(list int, number, label, kind string, fade *float64, pct *int) {
	e.mu.Lock()
	e.settlePollLocked(list, true, kind)
	e.mu.Unlock()

	e.store.MarkSeen(list, number, kind)

	// A parsed fade becomes the user-facing fade time when the cue is not
	// yet running (pending) or just started (0%).
	if fade != nil && (kind == "pending" || (pct != nil && *pct == 0)) {
		e.store.Upsert(store.Key{List: list, Number: number, Part: 0}, store.CueUpdate{FadeTime: fade})
	}
	e.store.Persist()

	if kind == "active" {
		e.recordActiveCue(list, number, label)
	}

	e.notify("active", map[string]interface{}{
		"cueList": list, "cueNumber": number, "state": kind,
	})
}

// handleCueText parses a display-text payload and applies it. The
// contextual list comes from the text itself, the address, or the
// outstanding poll; without any of those an unscoped text is dropped.
func (e *Engine) handleCueText(text string, addrList int, hasAddrList bool, kind string) {
	parsed := eos.ParseCueText(text)

	list := addrList
	hasList := hasAddrList
	if parsed.HasList {
		list = parsed.List
		hasList = true
	}

	e.mu.Lock()
	ctxList, ok := e.settlePollLocked(list, hasList, kind)
	e.mu.Unlock()
	if !ok {
		return
	}

	if parsed.Reset {
		// "No cue" for this slot: clear the contextual list only.
		e.store.ClearSeen(ctxList, kind)
		e.notify("active", map[string]interface{}{
			"cueList": ctxList, "cueNumber": nil, "state": kind,
		})
		return
	}
	if parsed.Number == "" {
		return
	}

	e.handleCueMark(ctxList, parsed.Number, parsed.Label, kind, parsed.Fade, parsed.Percent)
}
