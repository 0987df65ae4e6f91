// Package sqlstoretest provides a migrated in-memory SQLite account store for tests.
package sqlstoretest

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/loginguard/store"
	"github.com/MrEthical07/loginguard/store/sqlstore"
)

// New opens a fresh in-memory database, applies migrations and registers
// cleanup on t.
func New(t testing.TB) *sqlstore.Store {
	t.Helper()

	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := sqlstore.Migrate(ctx, sqlstore.SQLite, db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return sqlstore.New(db)
}

// Seed creates an active account and fails the test on error.
func Seed(t testing.TB, s store.AccountStore, email, passwordHash string) *store.Account {
	t.Helper()

	a, err := s.Create(context.Background(), store.NewAccount{
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: passwordHash,
		Status:       store.StatusActive,
		Locale:       "en",
	}, time.Now())
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return a
}
