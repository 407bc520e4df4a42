package main

import (
	"log"
	"sort"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"aboutcue/server/eos"
	"aboutcue/server/store"
)

// Refresh timing constants. The count deadline applies twice: once before
// the fallback probes go out and once after.
const (
	refreshCountTimeout  = 5 * time.Second
	refreshBatchInterval = 50 * time.Millisecond
	refreshBatchSize     = 10
	refreshMinDeadline   = 5 * time.Second
	refreshPerCue        = 100 * time.Millisecond
)

type refreshPhase int

const (
	refreshIdle refreshPhase = iota
	refreshAwaitCount
	refreshFetching
)

// refreshState is the per-list bulk retrieval machine:
// Idle → AwaitingCount(list, deadline) → Fetching(list, expected,
// receivedIdx, receivedNums, deadline) → Idle. Only one refresh runs at a
// time; queued lists wait their turn.
type refreshState struct {
	phase refreshPhase
	list  int

	// AwaitingCount: whether the fallback probes have been sent yet.
	fallbackSent bool

	// Fetching bookkeeping. indexed is true on the normal count→index path;
	// the wildcard fallback path fetches without issuing index requests.
	expected     int
	countKnown   bool
	indexed      bool
	nextIndex    int
	receivedIdx  map[int]bool
	receivedNums map[string]bool

	deadline time.Time
	queue    []int
}

// RequestRefresh starts (or enqueues) a bulk refresh of one cue list.
func (e *Engine) RequestRefresh(list int) {
	e.mu.Lock()
	msgs := e.requestRefreshLocked(list)
	e.mu.Unlock()
	e.sendAll(msgs)
}

// RequestRefreshAll refreshes every discovered list.
func (e *Engine) RequestRefreshAll() {
	e.mu.Lock()
	var msgs []*osc.Message
	for _, l := range e.sortedListsLocked() {
		msgs = append(msgs, e.requestRefreshLocked(l)...)
	}
	e.mu.Unlock()
	e.sendAll(msgs)
}

func (e *Engine) sortedListsLocked() []int {
	out := make([]int, 0, len(e.lists))
	for l := range e.lists {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// requestRefreshLocked deduplicates against the running refresh and the
// queue, then either starts immediately or enqueues.
func (e *Engine) requestRefreshLocked(list int) []*osc.Message {
	if !e.connected {
		return nil
	}
	if e.refresh.phase != refreshIdle {
		if e.refresh.list == list {
			return nil
		}
		for _, q := range e.refresh.queue {
			if q == list {
				return nil
			}
		}
		e.refresh.queue = append(e.refresh.queue, list)
		return nil
	}
	return e.startRefreshLocked(list)
}

// startRefreshLocked enters AwaitingCount and returns the count request for
// sending outside the lock.
func (e *Engine) startRefreshLocked(list int) []*osc.Message {
	e.refresh.phase = refreshAwaitCount
	e.refresh.list = list
	e.refresh.fallbackSent = false
	e.refresh.expected = 0
	e.refresh.countKnown = false
	e.refresh.indexed = false
	e.refresh.nextIndex = 0
	e.refresh.receivedIdx = make(map[int]bool)
	e.refresh.receivedNums = make(map[string]bool)
	e.refresh.deadline = e.clock.Now().Add(refreshCountTimeout)

	log.Printf("[refresh] list %d: requesting count", list)
	return []*osc.Message{eos.GetCueCount(list)}
}

// RefreshTick drives deadlines and the indexed-fetch batching. main runs it
// every 50 ms while the process lives; it is a no-op when idle.
func (e *Engine) RefreshTick() {
	e.mu.Lock()
	now := e.clock.Now()
	var msgs []*osc.Message
	var done, failed bool

	switch e.refresh.phase {
	case refreshIdle:
		e.mu.Unlock()
		return

	case refreshAwaitCount:
		if now.Before(e.refresh.deadline) {
			break
		}
		if !e.refresh.fallbackSent {
			// No count reply. Probe three other ways the console will
			// divulge its cues; the wildcard replies carry a total count.
			e.refresh.fallbackSent = true
			e.refresh.deadline = now.Add(refreshCountTimeout)
			l := e.refresh.list
			log.Printf("[refresh] list %d: count timed out, sending fallback probes", l)
			msgs = append(msgs, eos.GetCueRange(l), eos.GetFirstCue(l), eos.GetCueListWildcard(l))
			break
		}
		failed = true

	case refreshFetching:
		if e.refresh.indexed && e.refresh.nextIndex < e.refresh.expected {
			end := e.refresh.nextIndex + refreshBatchSize
			if end > e.refresh.expected {
				end = e.refresh.expected
			}
			for i := e.refresh.nextIndex; i < end; i++ {
				msgs = append(msgs, eos.GetCueIndex(e.refresh.list, i))
			}
			e.refresh.nextIndex = end
		}
		if len(e.refresh.receivedIdx) >= e.refresh.expected || !now.Before(e.refresh.deadline) {
			done = true
		}
	}

	var next []*osc.Message
	if failed {
		next = e.failRefreshLocked()
	} else if done {
		next = e.finishRefreshLocked()
	}
	e.mu.Unlock()

	e.sendAll(msgs)
	e.sendAll(next)
	if done {
		e.notify("cues", nil)
	}
}

// handleCueCount transitions AwaitingCount → Fetching. Counts arriving
// outside a refresh only update the list bookkeeping.
func (e *Engine) handleCueCount(ev eos.CueCount) {
	e.mu.Lock()
	e.lists[ev.List] = ev.Count

	if e.refresh.phase != refreshAwaitCount || e.refresh.list != ev.List {
		e.mu.Unlock()
		return
	}

	e.refresh.expected = ev.Count
	e.refresh.countKnown = true
	var next []*osc.Message
	var done bool
	if ev.Count == 0 {
		// Nothing to fetch; go straight to cleanup.
		done = true
		next = e.finishRefreshLocked()
	} else {
		e.refresh.phase = refreshFetching
		e.refresh.indexed = true
		e.refresh.nextIndex = 0
		e.refresh.deadline = e.clock.Now().Add(fetchDeadline(ev.Count))
		log.Printf("[refresh] list %d: expecting %d cues", ev.List, ev.Count)
	}
	e.mu.Unlock()

	e.sendAll(next)
	if done {
		e.notify("cues", nil)
	}
}

// fetchDeadline is the completion timeout once the count is known.
func fetchDeadline(count int) time.Duration {
	d := time.Duration(count) * refreshPerCue
	if d < refreshMinDeadline {
		d = refreshMinDeadline
	}
	return d
}

// handleCueData applies one cue record. Records for the refreshing list are
// credited to completion accounting; records for other lists upsert
// normally. Stale records — an index beyond the expected count, or data
// arriving before any count was established — are dropped so they cannot
// corrupt the wrong refresh session.
func (e *Engine) handleCueData(ev eos.CueData) {
	e.mu.Lock()

	inRefresh := e.refresh.phase != refreshIdle && e.refresh.list == ev.List
	if inRefresh {
		switch e.refresh.phase {
		case refreshAwaitCount:
			if !e.refresh.fallbackSent {
				// Data from an earlier, abandoned session.
				e.mu.Unlock()
				return
			}
			// Wildcard fallback succeeded: adopt the total from the address
			// the first time and start completing against it.
			e.refresh.phase = refreshFetching
			e.refresh.indexed = false
			if !e.refresh.countKnown && ev.Total > 0 {
				e.refresh.expected = ev.Total
				e.refresh.countKnown = true
				e.refresh.deadline = e.clock.Now().Add(fetchDeadline(ev.Total))
				log.Printf("[refresh] list %d: wildcard count %d", ev.List, ev.Total)
			}

		case refreshFetching:
			if e.refresh.countKnown && ev.Index >= e.refresh.expected {
				e.mu.Unlock()
				return
			}
		}

		e.refresh.receivedIdx[ev.Index] = true
		e.refresh.receivedNums[ev.Number] = true
	}

	e.mu.Unlock()

	e.store.Upsert(
		store.Key{List: ev.List, Number: ev.Number, Part: ev.Part},
		updateFromFields(ev.Fields),
	)

	// Completion can be triggered by the final record, without waiting for
	// the next tick.
	e.mu.Lock()
	var next []*osc.Message
	var done bool
	if inRefresh && e.refresh.phase == refreshFetching && e.refresh.list == ev.List &&
		e.refresh.countKnown && len(e.refresh.receivedIdx) >= e.refresh.expected {
		done = true
		next = e.finishRefreshLocked()
	}
	e.mu.Unlock()

	e.sendAll(next)
	if done {
		e.notify("cues", nil)
	}
}

// finishRefreshLocked runs cleanup for the completed list and dequeues the
// next one. Eviction only runs when a count was established, so a one-reply
// failure can never wipe a list.
func (e *Engine) finishRefreshLocked() []*osc.Message {
	list := e.refresh.list
	received := len(e.refresh.receivedNums)

	if e.refresh.countKnown {
		kept := make(map[string]bool, received)
		for n := range e.refresh.receivedNums {
			kept[n] = true
		}
		removed := e.store.Evict(list, kept)
		e.lists[list] = received
		log.Printf("[refresh] list %d: complete, %d cues, %d evicted", list, received, removed)
	} else {
		log.Printf("[refresh] list %d: finished without a count, keeping existing cues", list)
	}
	e.store.Persist()

	return e.releaseRefreshLocked()
}

// failRefreshLocked gives up on the current list. Partial results stay; no
// eviction happens.
func (e *Engine) failRefreshLocked() []*osc.Message {
	log.Printf("[refresh] list %d: no response from console, giving up", e.refresh.list)
	return e.releaseRefreshLocked()
}

// releaseRefreshLocked returns to Idle and starts the next queued list.
func (e *Engine) releaseRefreshLocked() []*osc.Message {
	e.refresh.phase = refreshIdle
	e.refresh.receivedIdx = nil
	e.refresh.receivedNums = nil
	if len(e.refresh.queue) == 0 {
		return nil
	}
	next := e.refresh.queue[0]
	e.refresh.queue = e.refresh.queue[1:]
	return e.startRefreshLocked(next)
}

// abortRefreshLocked drops all refresh state on disconnect.
func (e *Engine) abortRefreshLocked() {
	e.refresh = refreshState{}
}

// updateFromFields converts a decoded cue record into a store update. Every
// always-overwrite field is present so console-cleared values clear here
// too; user-owned fields are untouchable by construction.
func updateFromFields(f eos.CueFields) store.CueUpdate {
	return store.CueUpdate{
		Label: f.Label,
		UID:   f.UID,
		Times: &store.CueTimes{
			Up:         f.UpTime,
			UpDelay:    f.UpDelay,
			Down:       f.DownTime,
			DownDelay:  f.DownDelay,
			Focus:      f.FocusTime,
			FocusDelay: f.FocusDelay,
			Color:      f.ColorTime,
			ColorDelay: f.ColorDelay,
			Beam:       f.BeamTime,
			BeamDelay:  f.BeamDelay,
			Follow:     f.FollowTime,
			Hang:       f.HangTime,
			Duration:   f.Duration,
		},
		Mark:      &f.Mark,
		Block:     &f.Block,
		Assert:    &f.Assert,
		Scene:     &f.Scene,
		SceneEnd:  &f.SceneEnd,
		PartCount: &f.PartCount,
	}
}
