package notify

import (
	"context"

	"github.com/MrEthical07/loginguard/internal/logging"
)

// LogNotifier writes events to a logger. Used when no broker is configured.
type LogNotifier struct {
	log logging.Logger
}

func NewLog(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.log.Info(ctx, "admin notification",
		"event", event.Type,
		"account_id", event.AccountID,
		"email", event.Email,
		"status", event.Status,
		"provider", event.Provider,
	)
	return nil
}
