package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "pairs.signals"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each message as a JSON Event on a subject.
type NATS struct {
	conn    *nats.Conn
	pub     publisher
	subject string
}

func ConnectNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("pairs-trader"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{conn: conn, pub: conn, subject: subject}, nil
}

func (n *NATS) Notify(_ context.Context, message string) error {
	return n.Publish(NewEvent(EventNotification, message, nil))
}

func (n *NATS) Publish(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return deliveryError("nats", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return deliveryError("nats", err)
	}
	return nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
