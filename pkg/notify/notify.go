// Package notify delivers plain-text alerts to humans and event streams.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	EventNotification = "notification"
	EventScan         = "scan"
	EventCycle        = "cycle"
)

// Event is the envelope published to machine consumers.
type Event struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewEvent(eventType, message string, data interface{}) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Time:    time.Now().UTC(),
		Message: message,
		Data:    data,
	}
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Multi sends every message to all notifiers. A failing notifier does not
// stop delivery to the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes messages to the logger. It is the notifier of last resort
// when no channel is configured.
type Log struct {
	Logger *logrus.Logger
}

func (l Log) Notify(_ context.Context, message string) error {
	l.Logger.WithField("channel", "log").Info(message)
	return nil
}

// ErrNotDelivered wraps channel-level delivery failures.
var ErrNotDelivered = errors.New("notification not delivered")

func deliveryError(channel string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrNotDelivered, channel, err)
}
