package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultSubject is the NATS subject used when none is configured.
const DefaultSubject = "loginguard.admin.notifications"

// publisher is satisfied by *nats.Conn.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSNotifier publishes events as JSON to a NATS subject.
type NATSNotifier struct {
	conn    publisher
	subject string
}

// NewNATS returns a notifier publishing on subject through conn.
func NewNATS(conn publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	if err := n.conn.Publish(n.subject+"."+event.Type, data); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}
