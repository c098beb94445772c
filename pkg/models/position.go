package models

// PositionState is the persisted per-pair position. The zero value is no position.
type PositionState string

const (
	PositionNone  PositionState = ""
	PositionLong  PositionState = "long"
	PositionShort PositionState = "short"
)

func (s PositionState) Active() bool {
	return s == PositionLong || s == PositionShort
}

// Valid reports whether s may appear in a persisted position map.
func (s PositionState) Valid() bool {
	return s.Active()
}

// Positions maps a pair key to its open position. Absent keys mean PositionNone.
type Positions map[string]PositionState

func (p Positions) Get(key string) PositionState {
	if p == nil {
		return PositionNone
	}
	return p[key]
}

func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SignalEvent is the transition emitted by the signal state machine.
type SignalEvent string

const (
	EventNone       SignalEvent = "none"
	EventEnterLong  SignalEvent = "enter_long"
	EventEnterShort SignalEvent = "enter_short"
	EventExit       SignalEvent = "exit"
	EventHold       SignalEvent = "hold"
	EventIdle       SignalEvent = "idle"
)
