// Package notify delivers best-effort administrator notifications.
//
// # Components
//
//   - [Notifier] is the delivery contract (NATS publisher, log, func adapter).
//   - [Dispatcher] is an async, bounded, drop-if-full relay in front of a
//     Notifier with a per-send timeout and an outbound rate cap.
//
// # What this package must NOT do
//
//   - Propagate delivery failures to the login path.
//   - Retry. A dropped or failed notification is logged and counted.
package notify

import (
	"context"
	"time"
)

// Event types.
const (
	EventAccountProvisioned = "account.provisioned"
	EventAccountLocked      = "account.locked"
)

// Event is the payload published to administrators.
type Event struct {
	Type        string    `json:"type"`
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Status      string    `json:"status,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers one event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Func adapts a function to [Notifier].
type Func func(ctx context.Context, event Event) error

func (f Func) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
