// Package signal turns live Z-scores into stateful position signals and runs
// the per-cycle monitoring of the selected pairs.
package signal

import (
	"math"

	"github.com/gregtusar/pairs/pkg/models"
)

const (
	DefaultEntryThreshold = 2.0
	DefaultExitThreshold  = 0.5
)

// Thresholds parameterize the state machine.
type Thresholds struct {
	Entry float64
	Exit  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Entry: DefaultEntryThreshold, Exit: DefaultExitThreshold}
}

// Transition is the outcome of one evaluation of a pair.
type Transition struct {
	Prior models.PositionState `json:"prior"`
	Next  models.PositionState `json:"next"`
	Event models.SignalEvent   `json:"event"`
}

// Alerting reports whether the transition produces its own notification.
func (t Transition) Alerting() bool {
	switch t.Event {
	case models.EventEnterLong, models.EventEnterShort, models.EventExit:
		return true
	}
	return false
}

// Next applies the transition rules in priority order:
//
//	z >  entry            -> short, entry event only from none
//	z < -entry            -> long,  entry event only from none
//	|z| < exit and active -> none,  exit event
//	active                -> unchanged (hold)
//	none                  -> none   (idle)
//
// A position on the opposite side switches silently (EventNone) when the
// other entry band is reached.
func (th Thresholds) Next(z float64, prior models.PositionState) Transition {
	t := Transition{Prior: prior, Next: prior, Event: models.EventHold}

	switch {
	case z > th.Entry:
		t.Next = models.PositionShort
		t.Event = entryEvent(prior, models.PositionShort, models.EventEnterShort)
	case z < -th.Entry:
		t.Next = models.PositionLong
		t.Event = entryEvent(prior, models.PositionLong, models.EventEnterLong)
	case math.Abs(z) < th.Exit && prior.Active():
		t.Next = models.PositionNone
		t.Event = models.EventExit
	case prior.Active():
		t.Event = models.EventHold
	default:
		t.Next = models.PositionNone
		t.Event = models.EventIdle
	}
	return t
}

func entryEvent(prior, target models.PositionState, enter models.SignalEvent) models.SignalEvent {
	switch prior {
	case models.PositionNone:
		return enter
	case target:
		return models.EventHold
	default:
		return models.EventNone
	}
}
