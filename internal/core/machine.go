package core

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	displayOff = "off"
	displayOn  = "on"

	eventDisplayOn  = "display_on"
	eventDisplayOff = "display_off"

	networkIdle      = "idle"
	networkSearching = "searching"

	eventSearchStart = "search_start"
	eventSearchStop  = "search_stop"
)

// machine wraps an fsm whose enter callbacks start and stop hardware timers.
// Events that would not change state are dropped, which keeps repeated
// reports of the same state idempotent.
type machine struct {
	fsm     *fsm.FSM
	initial string
}

func newMachine(initial string, events fsm.Events, callbacks fsm.Callbacks) *machine {
	return &machine{fsm: fsm.NewFSM(initial, events, callbacks), initial: initial}
}

// newDisplayMachine tracks whether the screen on-timer should run.
func newDisplayMachine(enterOn, enterOff func()) *machine {
	return newMachine(displayOff,
		fsm.Events{
			{Name: eventDisplayOn, Src: []string{displayOff}, Dst: displayOn},
			{Name: eventDisplayOff, Src: []string{displayOn}, Dst: displayOff},
		},
		fsm.Callbacks{
			"enter_" + displayOn:  func(context.Context, *fsm.Event) { enterOn() },
			"enter_" + displayOff: func(context.Context, *fsm.Event) { enterOff() },
		},
	)
}

// newNetworkMachine tracks whether the modem scan timer should run.
func newNetworkMachine(enterSearching, enterIdle func()) *machine {
	return newMachine(networkIdle,
		fsm.Events{
			{Name: eventSearchStart, Src: []string{networkIdle}, Dst: networkSearching},
			{Name: eventSearchStop, Src: []string{networkSearching}, Dst: networkIdle},
		},
		fsm.Callbacks{
			"enter_" + networkSearching: func(context.Context, *fsm.Event) { enterSearching() },
			"enter_" + networkIdle:      func(context.Context, *fsm.Event) { enterIdle() },
		},
	)
}

// fire runs event if it applies to the current state and reports whether a
// transition happened.
func (m *machine) fire(event string) bool {
	if !m.fsm.Can(event) {
		return false
	}
	return m.fsm.Event(context.Background(), event) == nil
}

func (m *machine) current() string {
	return m.fsm.Current()
}

// reset returns to the initial state without running callbacks.
func (m *machine) reset() {
	m.fsm.SetState(m.initial)
}
