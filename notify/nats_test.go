package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/loginguard/internal/logging"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	p.subject = subj
	p.data = data
	return p.err
}

func TestNATSNotifierPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub, "")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := n.Notify(context.Background(), Event{
		Type:       EventAccountProvisioned,
		AccountID:  "acct-1",
		Email:      "new@example.com",
		Status:     "PENDING",
		Provider:   "google",
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if pub.subject != DefaultSubject+"."+EventAccountProvisioned {
		t.Fatalf("unexpected subject %q", pub.subject)
	}

	var got Event
	if err := json.Unmarshal(pub.data, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.AccountID != "acct-1" || got.Status != "PENDING" || !got.OccurredAt.Equal(at) {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestNATSNotifierErrors(t *testing.T) {
	n := NewNATS(&fakePublisher{err: errors.New("nats: connection closed")}, "admin")
	if err := n.Notify(context.Background(), Event{Type: EventAccountLocked}); err == nil {
		t.Fatal("expected publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := &fakePublisher{}
	if err := NewNATS(pub, "admin").Notify(ctx, Event{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pub.data != nil {
		t.Fatal("cancelled notify must not publish")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := NewLog(log).Notify(context.Background(), Event{Type: EventAccountProvisioned, AccountID: "acct-9"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "event=account.provisioned") || !strings.Contains(out, "account_id=acct-9") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
