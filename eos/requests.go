package eos

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

// Outbound request builders. Every message the engine ever sends to the
// console is constructed here so the wire contract lives in one place.

// GetVersion asks for the console software version.
func GetVersion() *osc.Message {
	return osc.NewMessage("/eos/get/version")
}

// Subscribe asks the console to push state changes (active/pending cues,
// cue notifies) to this client.
func Subscribe() *osc.Message {
	m := osc.NewMessage("/eos/subscribe")
	m.Append(int32(1))
	return m
}

// GetCueListCount asks how many cue lists exist.
func GetCueListCount() *osc.Message {
	return osc.NewMessage("/eos/get/cuelist/count")
}

// GetCueListIndex asks for the cue list at index i.
func GetCueListIndex(i int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cuelist/index/%d", i))
}

// GetCueCount asks for the number of cues in list.
func GetCueCount(list int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/count", list))
}

// GetCueIndex asks for the cue at index i of list.
func GetCueIndex(list, i int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/index/%d", list, i))
}

// GetCue asks for one cue by number.
func GetCue(list int, number string) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/%s", list, number))
}

// GetActiveCue polls the running cue of list.
func GetActiveCue(list int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/active", list))
}

// GetPendingCue polls the next cue of list.
func GetPendingCue(list int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/pending", list))
}

// GetFaderConfig asks what fader index 0 is bound to; the reply identifies
// the main playback list.
func GetFaderConfig() *osc.Message {
	return osc.NewMessage("/eos/get/fader/0/config")
}

// GetCueRange is the first fallback when a count request goes unanswered:
// ask for the first thousand cues outright.
func GetCueRange(list int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/0/1000", list))
}

// GetFirstCue is the second fallback probe.
func GetFirstCue(list int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cue/%d/1", list))
}

// GetCueListWildcard is the third fallback: a wildcard fetch whose replies
// carry the list's total count in their address suffix.
func GetCueListWildcard(list int) *osc.Message {
	return osc.NewMessage(fmt.Sprintf("/eos/get/cuelist/%d/cue/*/list", list))
}
