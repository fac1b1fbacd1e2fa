package state

import "time"

// Lifecycle drives a room through awaiting -> active -> terminal. Reset re-enters
// active from active or terminal and stays in awaiting before the second peer
// joins; a departing peer sends a surviving room back to awaiting.
type Lifecycle struct {
	*BaseStateMachine
	awaiting *AwaitingState
	active   *ActiveState
	terminal *TerminalState
}

func NewLifecycle(room RoomContext) *Lifecycle {
	l := &Lifecycle{
		awaiting: NewAwaitingState(room),
		active:   NewActiveState(room),
		terminal: NewTerminalState(room),
	}
	l.BaseStateMachine = NewBaseStateMachine(l.awaiting)

	table := []struct{ from, to State }{
		{l.awaiting, l.active},
		{l.awaiting, l.awaiting},
		{l.active, l.terminal},
		{l.active, l.active},
		{l.terminal, l.active},
		{l.active, l.awaiting},
		{l.terminal, l.awaiting},
	}
	for _, t := range table {
		l.AddTransition(t.from, t.to, nil)
	}
	return l
}

func (l *Lifecycle) Phase() string {
	return l.GetCurrentState().GetID()
}

func (l *Lifecycle) IsActive() bool {
	return l.Phase() == PhaseActive
}

func (l *Lifecycle) Activate() error { return l.ChangeState(l.active) }
func (l *Lifecycle) Finish() error   { return l.ChangeState(l.terminal) }
func (l *Lifecycle) Await() error    { return l.ChangeState(l.awaiting) }

// RoundDuration is the time between the latest activation and the end of the
// round, or until now while the round is still running. Zero when no round ran.
func (l *Lifecycle) RoundDuration() time.Duration {
	start := l.active.StartedAt
	if start.IsZero() {
		return 0
	}
	if l.Phase() == PhaseTerminal {
		return l.terminal.FinishedAt.Sub(start)
	}
	return time.Since(start)
}
