// Package lockout tracks per-account progressive lockout on top of the
// account store's atomic counter update.
//
// # What this package must NOT do
//
//   - Read the counter, increment in memory and write it back.
//   - Hold account-keyed locks in process memory.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/loginguard/store"
)

const (
	// DefaultThreshold is the failure count that triggers a lockout.
	DefaultThreshold = 5
	// DefaultDuration is how long a lockout lasts.
	DefaultDuration = 30 * time.Minute
)

// ErrUnavailable indicates the account store could not apply the update.
var ErrUnavailable = errors.New("lockout store unavailable")

// Config holds the lockout policy.
type Config struct {
	Threshold int
	Duration  time.Duration
}

// Result describes the state after a recorded failure.
type Result struct {
	Attempts     int
	LockoutUntil *time.Time
	// Locked is true only when this failure moved the account into lockout.
	Locked bool
}

// Tracker applies the lockout policy to accounts in a [store.AccountStore].
type Tracker struct {
	store  store.AccountStore
	config Config
	now    func() time.Time
}

// New creates a Tracker. A nil now uses time.Now.
func New(s store.AccountStore, cfg Config, now func() time.Time) *Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: s, config: cfg, now: now}
}

// IsLocked reports whether the account's lockout is strictly in the future
// at the given instant. An elapsed lockout is stale and ignored.
func IsLocked(a *store.Account, at time.Time) bool {
	return a != nil && a.LockoutUntil != nil && a.LockoutUntil.After(at)
}

// IsLocked reports whether the account is locked at the tracker's current time.
func (t *Tracker) IsLocked(a *store.Account) bool {
	return IsLocked(a, t.now())
}

// RecordFailure atomically increments the account's failure counter and
// locks it when the threshold is reached.
func (t *Tracker) RecordFailure(ctx context.Context, a *store.Account) (Result, error) {
	now := t.now()
	rec, err := t.store.RecordFailedLogin(ctx, a.ID, t.config.Threshold, now, now.Add(t.config.Duration))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Result{Attempts: rec.Attempts, LockoutUntil: rec.LockoutUntil, Locked: rec.Locked}, nil
}

// RecordSuccess clears the counter and any lockout. The reset is always
// written: the snapshot in a may predate failures recorded concurrently.
func (t *Tracker) RecordSuccess(ctx context.Context, a *store.Account) error {
	if err := t.store.ResetFailedLogins(ctx, a.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	a.FailedLoginAttempts = 0
	a.LockoutUntil = nil
	return nil
}

// Sweep physically clears lockouts that elapsed before now. Login does not
// depend on it; elapsed lockouts are already ignored by IsLocked.
func (t *Tracker) Sweep(ctx context.Context) (int64, error) {
	n, err := t.store.ClearExpiredLockouts(ctx, t.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
