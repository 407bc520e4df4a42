package main

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
	"k8s.io/utils/clock"

	"aboutcue/server/eos"
	"aboutcue/server/store"
)

// MessageSender is the minimal interface needed to send an OSC message to
// the console. Using an interface here lets tests inject a mock sender.
type MessageSender interface {
	Send(msg *osc.Message) error
}

// Engine owns all mutable protocol state: the connection, discovered cue
// lists, the refresh state machine, active/pending tracking, and the timing
// recorder. One mutex serialises the engine's own state. The cue store
// (cues, active/pending marks, timings) is guarded by the store's own mutex
// and is mostly written after this one is released, so an engine state
// change and the store write that goes with it are not one atomic step.
type Engine struct {
	mu    sync.Mutex
	clock clock.Clock
	store *store.Store

	conn      eos.Conn      // nil when disconnected
	sender    MessageSender // == conn in production; swappable in tests
	connected bool

	settings store.Settings
	mainList int

	consoleVersion string
	consoleShow    string

	// lists maps each discovered cue list to its last known cue count
	// (0 = count not established yet).
	lists map[int]int

	refresh refreshState
	poll    pollState
	play    playbackState

	rxCount atomic.Uint64
	txCount atomic.Uint64

	// onEvent, when set, receives every model-change notification for
	// fan-out to browser clients. Called outside the engine mutex.
	onEvent func(event string, payload interface{})
}

// NewEngine wires an engine over the store with the given settings. The
// clock is injected so tests can drive refresh and poll deadlines.
func NewEngine(st *store.Store, settings store.Settings, clk clock.Clock) *Engine {
	mainList, err := strconv.Atoi(settings.MainPlaybackList)
	if err != nil || mainList <= 0 {
		mainList = 1
	}
	return &Engine{
		clock:    clk,
		store:    st,
		settings: settings,
		mainList: mainList,
		lists:    make(map[int]int),
	}
}

// SetOnEvent registers the model-change fan-out callback.
func (e *Engine) SetOnEvent(fn func(event string, payload interface{})) {
	e.mu.Lock()
	e.onEvent = fn
	e.mu.Unlock()
}

// Store returns the engine's cue store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// notify fires the event callback outside the lock.
func (e *Engine) notify(event string, payload interface{}) {
	e.mu.Lock()
	fn := e.onEvent
	e.mu.Unlock()
	if fn != nil {
		fn(event, payload)
	}
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// Connect dials the console with the current transport settings and runs the
// initial handshake: version, subscribe, cue list discovery, fader config.
// There is no automatic reconnection; callers re-invoke Connect.
func (e *Engine) Connect() error {
	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	cfg := eos.Config{
		Address:  e.settings.OSC.IPAddress,
		Port:     e.settings.OSC.Port,
		Protocol: e.settings.OSC.Protocol,
	}
	e.mu.Unlock()

	conn, err := eos.Dial(cfg, e.handleOSC, e.handleConnectionLost)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.conn = conn
	e.sender = conn
	e.connected = true
	e.lists = make(map[int]int)
	e.resetPollLocked()
	e.mu.Unlock()

	log.Printf("[engine] connected to %s:%d over %s", cfg.Address, cfg.Port, cfg.Protocol)

	e.send(eos.GetVersion())
	e.send(eos.Subscribe())
	e.send(eos.GetCueListCount())
	e.send(eos.GetFaderConfig())

	e.notify("connection", map[string]interface{}{"connected": true})
	return nil
}

// Disconnect closes the transport. Polls and refreshes go inert until the
// next Connect.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.sender = nil
	e.connected = false
	e.abortRefreshLocked()
	e.resetPollLocked()
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
		log.Printf("[engine] disconnected")
	}
	e.notify("connection", map[string]interface{}{"connected": false})
}

// Connected reports the transport state.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// handleConnectionLost runs when the transport drops underneath us.
func (e *Engine) handleConnectionLost(err error) {
	log.Printf("[engine] connection lost: %v", err)
	e.mu.Lock()
	e.conn = nil
	e.sender = nil
	e.connected = false
	e.abortRefreshLocked()
	e.resetPollLocked()
	e.mu.Unlock()
	e.notify("connection", map[string]interface{}{"connected": false, "error": err.Error()})
}

// send transmits one message, counting it. Sends while disconnected are
// dropped without a log line; a transport send error is only logged. The
// protocol has no delivery guarantees anyway.
func (e *Engine) send(msg *osc.Message) {
	e.mu.Lock()
	s := e.sender
	e.mu.Unlock()
	if s == nil {
		return
	}
	e.txCount.Add(1)
	if err := s.Send(msg); err != nil {
		log.Printf("[engine] send %s: %v", msg.Address, err)
	}
}

// sendAll transmits a batch collected under the lock.
func (e *Engine) sendAll(msgs []*osc.Message) {
	for _, m := range msgs {
		e.send(m)
	}
}

// ---------------------------------------------------------------------------
// Inbound dispatch
// ---------------------------------------------------------------------------

// handleOSC decodes one inbound message and applies it to the model. It is
// the single entry point for console state; unrecognised addresses fall
// through silently, malformed ones were already dropped by the parser.
func (e *Engine) handleOSC(msg *osc.Message) {
	e.rxCount.Add(1)

	ev := eos.Parse(msg)
	if ev == nil {
		return
	}

	switch ev := ev.(type) {
	case eos.ShowName:
		e.mu.Lock()
		e.consoleShow = ev.Name
		e.mu.Unlock()
		e.notify("show", map[string]interface{}{"consoleShow": ev.Name})

	case eos.Version:
		e.mu.Lock()
		e.consoleVersion = ev.Version
		e.mu.Unlock()
		log.Printf("[engine] console version %s", ev.Version)

	case eos.CueListCount:
		var msgs []*osc.Message
		for i := 0; i < ev.Count; i++ {
			msgs = append(msgs, eos.GetCueListIndex(i))
		}
		e.sendAll(msgs)

	case eos.CueListDiscovered:
		e.handleCueListDiscovered(ev)

	case eos.CueCount:
		e.handleCueCount(ev)

	case eos.CueData:
		e.handleCueData(ev)

	case eos.CueNotify:
		e.handleCueNotify(ev)

	case eos.FaderConfig:
		e.handleFaderConfig(ev)

	case eos.ActiveCue:
		e.handleCueMark(ev.List, ev.Number, "", "active", nil, nil)

	case eos.PendingCue:
		e.handleCueMark(ev.List, ev.Number, "", "pending", nil, nil)

	case eos.ActiveCueText:
		e.handleCueText(ev.Text, ev.List, ev.HasList, "active")

	case eos.PendingCueText:
		e.handleCueText(ev.Text, ev.List, ev.HasList, "pending")
	}
}

// handleCueListDiscovered registers a list and kicks off its first refresh.
func (e *Engine) handleCueListDiscovered(ev eos.CueListDiscovered) {
	e.mu.Lock()
	_, known := e.lists[ev.List]
	if !known {
		e.lists[ev.List] = 0
	}
	var msgs []*osc.Message
	if !known {
		msgs = e.requestRefreshLocked(ev.List)
	}
	e.mu.Unlock()

	if !known {
		log.Printf("[engine] discovered cue list %d", ev.List)
		e.sendAll(msgs)
		e.notify("lists", e.Lists())
	}
}

// handleCueNotify re-syncs a list whose cue count changed on the console.
// An unchanged count still names the edited cue, so that one record is
// re-fetched to pick up label and timing edits.
func (e *Engine) handleCueNotify(ev eos.CueNotify) {
	e.mu.Lock()
	last, known := e.lists[ev.List]
	var msgs []*osc.Message
	if known && last != 0 && ev.Count != last {
		msgs = e.requestRefreshLocked(ev.List)
	} else if ev.Number != "" {
		msgs = append(msgs, eos.GetCue(ev.List, ev.Number))
	}
	e.mu.Unlock()
	e.sendAll(msgs)
}

// handleFaderConfig adopts the console's main playback binding. A user
// override stands only until the next fader config arrives.
func (e *Engine) handleFaderConfig(ev eos.FaderConfig) {
	if ev.Index != 0 || ev.Type != 1 || ev.TargetID <= 0 {
		return
	}
	e.mu.Lock()
	changed := e.mainList != ev.TargetID
	e.mainList = ev.TargetID
	e.settings.MainPlaybackList = strconv.Itoa(ev.TargetID)
	settings := e.settings
	dataDir := e.store.DataDir()
	e.mu.Unlock()

	if changed {
		log.Printf("[engine] main playback list is %d (%s)", ev.TargetID, ev.Label)
		if err := store.SaveSettings(dataDir, settings); err != nil {
			log.Printf("[engine] save settings: %v", err)
		}
		e.notify("mainList", map[string]interface{}{"mainPlaybackList": ev.TargetID})
	}
}

// ---------------------------------------------------------------------------
// Settings and status
// ---------------------------------------------------------------------------

// Settings returns the current global settings.
func (e *Engine) Settings() store.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings replaces the global settings and persists them. Transport
// changes take effect on the next Connect.
func (e *Engine) UpdateSettings(s store.Settings) error {
	e.mu.Lock()
	e.settings = s
	if n, err := strconv.Atoi(s.MainPlaybackList); err == nil && n > 0 {
		e.mainList = n
	}
	dataDir := e.store.DataDir()
	e.mu.Unlock()
	return store.SaveSettings(dataDir, s)
}

// SetMainList overrides the main playback list until the console reports a
// fader config.
func (e *Engine) SetMainList(list int) {
	e.mu.Lock()
	e.mainList = list
	e.settings.MainPlaybackList = strconv.Itoa(list)
	settings := e.settings
	dataDir := e.store.DataDir()
	e.mu.Unlock()
	if err := store.SaveSettings(dataDir, settings); err != nil {
		log.Printf("[engine] save settings: %v", err)
	}
}

// MainList returns the current main playback list number.
func (e *Engine) MainList() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mainList
}

// Lists returns the discovered cue list numbers in ascending order.
func (e *Engine) Lists() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedListsLocked()
}

// Status is the API/browser view of engine state.
type Status struct {
	Connected      bool       `json:"connected"`
	ConsoleVersion string     `json:"consoleVersion,omitempty"`
	ConsoleShow    string     `json:"consoleShow,omitempty"`
	ShowName       string     `json:"showName"`
	MainList       int        `json:"mainPlaybackList"`
	Lists          []int      `json:"cueLists"`
	Refreshing     bool       `json:"refreshing"`
	Recording      bool       `json:"isRecording"`
	Countdown      *Countdown `json:"countdown,omitempty"`
}

// Status assembles a consistent snapshot for the API.
func (e *Engine) Status() Status {
	timings := e.store.Timings()

	e.mu.Lock()
	st := Status{
		Connected:      e.connected,
		ConsoleVersion: e.consoleVersion,
		ConsoleShow:    e.consoleShow,
		MainList:       e.mainList,
		Lists:          e.sortedListsLocked(),
		Refreshing:     e.refresh.phase != refreshIdle,
		Recording:      timings.IsRecording,
		Countdown:      e.countdownLocked(&timings),
	}
	e.mu.Unlock()

	st.ShowName = e.store.ShowName()
	return st
}

// Stats reports cumulative OSC traffic and model size for the metrics
// logger.
func (e *Engine) Stats() (rx, tx uint64, cues int, connected bool) {
	rx = e.rxCount.Load()
	tx = e.txCount.Load()
	cues = len(e.store.Cues())
	connected = e.Connected()
	return
}
