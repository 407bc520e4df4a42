package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	testingclock "k8s.io/utils/clock/testing"

	"aboutcue/server/store"
)

// fakeSender records every message the engine sends.
type fakeSender struct {
	mu   sync.Mutex
	msgs []*osc.Message
}

func (f *fakeSender) Send(m *osc.Message) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Address
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

func (f *fakeSender) sentPrefix(prefix string) int {
	n := 0
	for _, a := range f.addresses() {
		if strings.HasPrefix(a, prefix) {
			n++
		}
	}
	return n
}

// newTestEngine builds an engine over a temp store with a fake clock and a
// fake sender marked connected, so protocol flows run without a console.
func newTestEngine(t *testing.T) (*Engine, *fakeSender, *testingclock.FakeClock) {
	t.Helper()
	st, err := store.Open(t.TempDir(), "Test")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	clk := testingclock.NewFakeClock(time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC))
	e := NewEngine(st, store.DefaultSettings(), clk)

	fs := &fakeSender{}
	e.mu.Lock()
	e.connected = true
	e.sender = fs
	e.mu.Unlock()
	return e, fs, clk
}

// oscMsg builds an inbound console message.
func oscMsg(addr string, args ...interface{}) *osc.Message {
	m := osc.NewMessage(addr)
	for _, a := range args {
		m.Append(a)
	}
	return m
}

// consoleCueArgs is a minimal but complete cue argument vector.
func consoleCueArgs(uid, label string) []interface{} {
	args := make([]interface{}, 30)
	for i := range args {
		args[i] = int32(-1)
	}
	args[0] = int32(0)
	args[1] = uid
	args[2] = label
	args[16], args[17], args[18] = "", "", ""
	args[26] = int32(0)
	args[28] = ""
	args[29] = int32(0)
	return args
}

func TestHandshakeDiscoversLists(t *testing.T) {
	e, fs, _ := newTestEngine(t)

	e.handleOSC(oscMsg("/eos/out/get/cuelist/count", int32(2)))
	if got := fs.sentPrefix("/eos/get/cuelist/index/"); got != 2 {
		t.Errorf("cuelist index requests: got %d, want 2", got)
	}

	e.handleOSC(oscMsg("/eos/out/get/cuelist/1/list/0/2"))
	e.handleOSC(oscMsg("/eos/out/get/cuelist/2/list/1/2"))

	lists := e.Lists()
	if len(lists) != 2 || lists[0] != 1 || lists[1] != 2 {
		t.Errorf("lists: got %v", lists)
	}

	// Discovery triggers a refresh: a count request for list 1 goes out
	// immediately, list 2 queues behind it.
	if got := fs.sentPrefix("/eos/get/cue/1/count"); got != 1 {
		t.Errorf("count requests for list 1: got %d", got)
	}
}

func TestVersionAndShowName(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.handleOSC(oscMsg("/eos/out/get/version", "3.2.5"))
	e.handleOSC(oscMsg("/eos/out/show/name", "Hamlet"))

	st := e.Status()
	if st.ConsoleVersion != "3.2.5" || st.ConsoleShow != "Hamlet" {
		t.Errorf("status: version=%q show=%q", st.ConsoleVersion, st.ConsoleShow)
	}
}

// TestScenario6 — fader config selects the main playback list.
func TestScenario6(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.handleOSC(oscMsg("/eos/out/get/fader/0/config", int32(0), int32(1), int32(3), "Main"))
	if got := e.MainList(); got != 3 {
		t.Errorf("main list: got %d, want 3", got)
	}

	// A non-cuelist fader binding must not move the main list.
	e.handleOSC(oscMsg("/eos/out/get/fader/0/config", int32(0), int32(2), int32(9), "Sub"))
	if got := e.MainList(); got != 3 {
		t.Errorf("main list after non-cuelist config: got %d, want 3", got)
	}
}

// TestUserMainListOverrideReplacedByFader — the override holds until a fresh
// fader config arrives.
func TestUserMainListOverrideReplacedByFader(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.SetMainList(7)
	if e.MainList() != 7 {
		t.Fatalf("override not applied")
	}
	e.handleOSC(oscMsg("/eos/out/get/fader/0/config", int32(0), int32(1), int32(2), "Main"))
	if got := e.MainList(); got != 2 {
		t.Errorf("main list: got %d, want 2 (fader wins)", got)
	}
}

func TestEventNotifications(t *testing.T) {
	e, _, _ := newTestEngine(t)

	var mu sync.Mutex
	var events []string
	e.SetOnEvent(func(event string, _ interface{}) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	e.handleOSC(oscMsg("/eos/out/show/name", "Hamlet"))
	e.handleOSC(oscMsg("/eos/out/active/cue/1/5"))

	mu.Lock()
	defer mu.Unlock()
	var haveShow, haveActive bool
	for _, ev := range events {
		switch ev {
		case "show":
			haveShow = true
		case "active":
			haveActive = true
		}
	}
	if !haveShow || !haveActive {
		t.Errorf("events: got %v", events)
	}
}
