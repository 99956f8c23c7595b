package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/rliebert/reading-fluency-app/internal/attempt"
)

type keyMap struct {
	Start    key.Binding
	Pause    key.Binding
	Done     key.Binding
	Simulate key.Binding
	Reset    key.Binding
	TestMode key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Next     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Start:    key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "start")),
		Pause:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Done:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "done")),
		Simulate: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "simulate")),
		Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		TestMode: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "test mode")),
		NextPage: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next page")),
		PrevPage: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "prev page")),
		Next:     key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "continue")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Done, k.Next, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Pause, k.Done, k.Next},
		{k.Simulate, k.Reset, k.TestMode},
		{k.NextPage, k.PrevPage, k.Help, k.Quit},
	}
}

// updateKeys enables the bindings that apply to the current phase.
func (m *Model) updateKeys() {
	st := m.ctl.State()
	ready := st.Phase == attempt.PhaseReady
	reading := st.Phase == attempt.PhaseReading
	m.keys.Start.SetEnabled(ready || (reading && st.Paused))
	if reading && st.Paused {
		m.keys.Start.SetHelp("enter", "resume")
	} else {
		m.keys.Start.SetHelp("enter", "start")
	}
	m.keys.Pause.SetEnabled(reading && !st.Paused)
	m.keys.Done.SetEnabled(reading)
	m.keys.Simulate.SetEnabled(ready || reading)
	m.keys.Reset.SetEnabled(reading)
	m.keys.TestMode.SetEnabled(ready)
	pages := m.ctl.Passage().SegmentCount() > 1
	m.keys.NextPage.SetEnabled((ready || reading) && pages)
	m.keys.PrevPage.SetEnabled((ready || reading) && pages)
	m.keys.Next.SetEnabled(st.Phase == attempt.PhaseRemediation || st.Phase == attempt.PhaseResults || st.Phase == attempt.PhaseComplete)
	switch st.Phase {
	case attempt.PhaseRemediation:
		m.keys.Next.SetHelp("enter", "next word")
	case attempt.PhaseComplete:
		m.keys.Next.SetHelp("enter", "quit")
	default:
		m.keys.Next.SetHelp("enter", "continue")
	}
}
