package main

import (
	"log"
	"time"

	"aboutcue/server/store"
)

// countdownInterval is how often playback countdowns recompute and push.
const countdownInterval = 1 * time.Second

// playbackState tracks live countdown playback against a recorded schedule.
// Recording state itself lives in the store's timing record so it survives a
// restart mid-show.
type playbackState struct {
	activeNumber string    // last main-list active cue
	elapsedAt    float64   // recorded timestamp of that cue
	firedAt      time.Time // wall clock when it went active
	haveFire     bool
}

// recordActiveCue feeds one active-cue observation to the recorder or, when
// not recording, to countdown playback. Only main-list transitions count;
// secondary-list activity would otherwise write ghost entries.
func (e *Engine) recordActiveCue(list int, number, label string) {
	timings := e.store.Timings()

	if timings.IsRecording {
		now := e.clock.Now()

		// The very first active cue of the recording starts the show clock,
		// whichever list it lands on.
		if timings.ShowStartTime == 0 {
			e.store.MutateTimings(func(t *store.ShowTimings) {
				t.ShowStartTime = now.UnixMilli()
			})
			timings.ShowStartTime = now.UnixMilli()
			log.Printf("[timing] show clock started")
		}

		e.mu.Lock()
		mainList := e.mainList
		e.mu.Unlock()
		if list != mainList || number == timings.LastCueNumber {
			return
		}

		ts := float64(now.UnixMilli()-timings.ShowStartTime) / 1000
		e.store.MutateTimings(func(t *store.ShowTimings) {
			t.Record(list, number, label, ts)
		})
		log.Printf("[timing] cue %s at %.1fs", number, ts)
		e.notify("timings", e.store.Timings())
		return
	}

	// Playback: align the live clock with the recorded schedule.
	e.mu.Lock()
	mainList := e.mainList
	if list == mainList && len(timings.CueTimings) > 0 {
		if entry := timings.Find(number); entry != nil {
			e.play = playbackState{
				activeNumber: number,
				elapsedAt:    entry.Timestamp,
				firedAt:      e.clock.Now(),
				haveFire:     true,
			}
		}
	}
	e.mu.Unlock()
}

// SetRecording flips the recorder. Turning it on arms the show clock for
// the next active cue; turning it off leaves the recorded schedule in place
// for playback.
func (e *Engine) SetRecording(on bool) {
	e.store.MutateTimings(func(t *store.ShowTimings) {
		t.IsRecording = on
		if on {
			// A fresh take re-arms the clock; recorded entries update in
			// place as cues re-fire.
			t.ShowStartTime = 0
			t.LastCueNumber = ""
			t.LastCueTime = 0
		}
	})
	e.mu.Lock()
	e.play = playbackState{}
	e.mu.Unlock()
	log.Printf("[timing] recording %v", on)
	e.notify("timings", e.store.Timings())
}

// ClearTimings erases the recorded schedule.
func (e *Engine) ClearTimings() {
	e.store.MutateTimings(func(t *store.ShowTimings) {
		t.Reset()
	})
	e.mu.Lock()
	e.play = playbackState{}
	e.mu.Unlock()
	e.notify("timings", e.store.Timings())
}

// Countdown is the live playback view computed against the recording.
type Countdown struct {
	ActiveCue          string             `json:"activeCue"`
	NextCue            string             `json:"nextCue,omitempty"`
	ShowElapsed        float64            `json:"showElapsed"`
	TimeToNext         float64            `json:"timeToNext"`
	EstimatedRemaining float64            `json:"estimatedTimeRemaining"`
	CueCountdowns      map[string]float64 `json:"cueCountdowns"`
}

// countdownLocked computes the countdown snapshot, or nil when playback is
// not running (recording, no schedule, or no cue fired yet).
func (e *Engine) countdownLocked(timings *store.ShowTimings) *Countdown {
	if timings.IsRecording || len(timings.CueTimings) == 0 || !e.play.haveFire {
		return nil
	}

	showElapsed := e.play.elapsedAt + e.clock.Since(e.play.firedAt).Seconds()

	cd := &Countdown{
		ActiveCue:          e.play.activeNumber,
		ShowElapsed:        showElapsed,
		EstimatedRemaining: timings.Total() - showElapsed,
		CueCountdowns:      make(map[string]float64, len(timings.CueTimings)),
	}
	if cd.EstimatedRemaining < 0 {
		cd.EstimatedRemaining = 0
	}

	active := timings.Find(e.play.activeNumber)
	next := timings.Next(e.play.activeNumber)
	if active != nil && next != nil {
		cd.NextCue = next.CueNumber
		cd.TimeToNext = next.TimeFromPrevious - (showElapsed - active.Timestamp)
		if cd.TimeToNext < 0 {
			cd.TimeToNext = 0
		}
	}

	// The active cue counts down live; every other cue reports its recorded
	// gap as a static duration.
	for _, t := range timings.CueTimings {
		if t.CueNumber == e.play.activeNumber {
			cd.CueCountdowns[t.CueNumber] = cd.TimeToNext
		} else {
			cd.CueCountdowns[t.CueNumber] = t.TimeFromPrevious
		}
	}
	return cd
}

// CountdownTick pushes a fresh countdown to browser clients. main runs it
// every second; it is silent unless playback is live.
func (e *Engine) CountdownTick() {
	timings := e.store.Timings()
	e.mu.Lock()
	cd := e.countdownLocked(&timings)
	e.mu.Unlock()
	if cd != nil {
		e.notify("countdown", cd)
	}
}
