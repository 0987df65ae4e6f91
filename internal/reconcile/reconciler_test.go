package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/loginguard/notify"
	"github.com/MrEthical07/loginguard/store"
	"github.com/MrEthical07/loginguard/store/sqlstore/sqlstoretest"
)

type captured struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (c *captured) Notify(_ context.Context, e notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *captured) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

var fixedNow = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestResolveFederatedProvisionsPendingAccount(t *testing.T) {
	s := sqlstoretest.New(t)
	n := &captured{}
	r := New(s, n, Config{DefaultLocale: "de", DefaultOrganizationID: "org-1"}, clock, nil)

	res, err := r.ResolveFederated(context.Background(), Identity{
		Email:       "  New.User@Example.com ",
		DisplayName: "New User",
		AvatarURL:   "https://img.example.com/a.png",
		Provider:    "google",
	})
	if err != nil {
		t.Fatalf("ResolveFederated: %v", err)
	}
	a := res.Account
	if !res.Provisioned {
		t.Fatal("expected provisioning")
	}
	if a.Email != "new.user@example.com" || a.Status != store.StatusPending || a.IsAdmin {
		t.Fatalf("unexpected account: %+v", a)
	}
	if a.HasPassword() {
		t.Fatal("federated account must not carry a password hash")
	}
	if a.Locale != "de" || a.OrganizationID != "org-1" || a.AvatarURL == "" {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if a.LastLoginAt == nil || !a.LastLoginAt.Equal(fixedNow) {
		t.Fatalf("expected last login stamped, got %v", a.LastLoginAt)
	}
	if n.len() != 1 || n.events[0].Type != notify.EventAccountProvisioned || n.events[0].Provider != "google" {
		t.Fatalf("expected one provisioning notification, got %+v", n.events)
	}
}

func TestResolveFederatedOpenRegistrationActivates(t *testing.T) {
	s := sqlstoretest.New(t)
	r := New(s, nil, Config{OpenRegistration: true}, clock, nil)

	res, err := r.ResolveFederated(context.Background(), Identity{Email: "open@example.com"})
	if err != nil {
		t.Fatalf("ResolveFederated: %v", err)
	}
	if res.Account.Status != store.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", res.Account.Status)
	}
	if res.Account.DisplayName != "open" {
		t.Fatalf("expected display name from email local part, got %q", res.Account.DisplayName)
	}
}

func TestResolveFederatedExistingAccountNoDuplicate(t *testing.T) {
	s := sqlstoretest.New(t)
	n := &captured{}
	r := New(s, n, Config{}, clock, nil)
	ctx := context.Background()

	first, err := r.ResolveFederated(ctx, Identity{Email: "dup@example.com", DisplayName: "First"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := r.ResolveFederated(ctx, Identity{Email: "DUP@example.com", DisplayName: "Second"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Provisioned || second.Account.ID != first.Account.ID {
		t.Fatalf("expected same account, got %s vs %s", second.Account.ID, first.Account.ID)
	}
	if second.Account.DisplayName != "First" {
		t.Fatal("existing account must be returned unchanged apart from last login")
	}
	if n.len() != 1 {
		t.Fatalf("expected exactly one notification, got %d", n.len())
	}
}

func TestResolveFederatedConcurrentSameEmail(t *testing.T) {
	s := sqlstoretest.New(t)
	n := &captured{}
	r := New(s, n, Config{}, clock, nil)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.ResolveFederated(context.Background(), Identity{Email: "race@example.com"})
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			ids[i] = res.Account.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one account id, got %v", ids)
		}
	}
	if n.len() != 1 {
		t.Fatalf("expected one provisioning notification, got %d", n.len())
	}
}

func TestNotificationFailureDoesNotFailLogin(t *testing.T) {
	s := sqlstoretest.New(t)
	r := New(s, &captured{err: errors.New("broker down")}, Config{}, clock, nil)

	res, err := r.ResolveFederated(context.Background(), Identity{Email: "quiet@example.com"})
	if err != nil {
		t.Fatalf("notification failure leaked: %v", err)
	}
	if !res.Provisioned {
		t.Fatal("expected provisioning despite notification failure")
	}
}

func TestResolveFederatedRejectsMissingEmail(t *testing.T) {
	r := New(sqlstoretest.New(t), nil, Config{}, clock, nil)
	for _, email := range []string{"", "   ", "no-at-sign"} {
		if _, err := r.ResolveFederated(context.Background(), Identity{Email: email}); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("%q: expected ErrInvalidIdentity, got %v", email, err)
		}
	}
}

func TestResolveLocalStampsLastLogin(t *testing.T) {
	s := sqlstoretest.New(t)
	a := sqlstoretest.Seed(t, s, "local@example.com", "hash")
	r := New(s, nil, Config{}, clock, nil)

	got, err := r.ResolveLocal(context.Background(), a)
	if err != nil {
		t.Fatalf("ResolveLocal: %v", err)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(fixedNow) {
		t.Fatalf("expected last login %v, got %v", fixedNow, got.LastLoginAt)
	}
	if got.PasswordHash != "hash" || got.Email != a.Email {
		t.Fatal("ResolveLocal must not change other fields")
	}
}

func TestResolveLocalMissingAccount(t *testing.T) {
	r := New(sqlstoretest.New(t), nil, Config{}, clock, nil)
	_, err := r.ResolveLocal(context.Background(), &store.Account{ID: "gone"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
