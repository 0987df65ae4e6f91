// Package credential verifies an email/secret pair against the account store.
//
// # Order of checks
//
// Lookup, lockout and comparison always run in this order:
//
//  1. trim the candidate secret (when enabled)
//  2. look up the account by normalized email
//  3. refuse locked accounts without touching their hash
//  4. compare the secret in constant time
//  5. record the failure or reset the counters
//
// Every denial path that skips step 4 spends a dummy comparison instead, so
// response time does not reveal whether an account exists or is locked.
//
// # What this package must NOT do
//
//   - Log, wrap into errors, or return the candidate secret or stored hash.
//   - Collapse the denial reasons. That happens at the engine boundary.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/loginguard/internal/lockout"
	"github.com/MrEthical07/loginguard/internal/logging"
	"github.com/MrEthical07/loginguard/store"
)

var (
	// ErrAccountNotFound is returned when no account matches the email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountLocked is returned while a lockout is active, and by the
	// failure that triggers one.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials is returned on a secret mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnavailable wraps account store failures.
	ErrUnavailable = errors.New("credential store unavailable")
)

// Reason values are stable strings for audit and logs.
const (
	ReasonNotFound         = "user_not_found"
	ReasonLocked           = "account_locked"
	ReasonLockoutTriggered = "lockout_triggered"
	ReasonMismatch         = "password_mismatch"
	ReasonNoPassword       = "no_local_password"
)

// Accounts is the subset of [store.AccountStore] the verifier reads and writes.
type Accounts interface {
	GetByEmail(ctx context.Context, email string) (*store.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// Lockout is the lockout policy consulted during verification.
type Lockout interface {
	IsLocked(a *store.Account) bool
	RecordFailure(ctx context.Context, a *store.Account) (lockout.Result, error)
	RecordSuccess(ctx context.Context, a *store.Account) error
}

// Hasher compares secrets against stored hashes.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
	NeedsUpgrade(encoded string) bool
	DummyVerify(secret string)
}

// Config controls secret normalization and hash upgrades.
type Config struct {
	TrimWhitespace bool
	UpgradeOnLogin bool
}

// Outcome describes a verification attempt. Account is nil when the email
// did not match. Reason is empty on success.
type Outcome struct {
	Account      *store.Account
	Reason       string
	Attempts     int
	LockoutUntil *time.Time
	// LockTriggered is set when this attempt moved the account into lockout.
	LockTriggered bool
	Upgraded      bool
}

// Verifier runs the credential check.
type Verifier struct {
	accounts Accounts
	lockout  Lockout
	hasher   Hasher
	config   Config
	log      logging.Logger
}

// New creates a Verifier. A nil log discards output.
func New(accounts Accounts, lk Lockout, hasher Hasher, cfg Config, log logging.Logger) *Verifier {
	if log == nil {
		log = logging.Discard()
	}
	return &Verifier{
		accounts: accounts,
		lockout:  lk,
		hasher:   hasher,
		config:   cfg,
		log:      log,
	}
}

// Verify checks secret for email. On success the returned account has
// cleared counters. Denials return one of ErrAccountNotFound,
// ErrAccountLocked or ErrInvalidCredentials; store failures wrap
// ErrUnavailable.
func (v *Verifier) Verify(ctx context.Context, email, secret string) (Outcome, error) {
	if v.config.TrimWhitespace {
		secret = strings.TrimSpace(secret)
	}

	acct, err := v.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			v.hasher.DummyVerify(secret)
			return Outcome{Reason: ReasonNotFound}, ErrAccountNotFound
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if v.lockout.IsLocked(acct) {
		v.hasher.DummyVerify(secret)
		return Outcome{
			Account:      acct,
			Reason:       ReasonLocked,
			Attempts:     acct.FailedLoginAttempts,
			LockoutUntil: acct.LockoutUntil,
		}, ErrAccountLocked
	}

	if !acct.HasPassword() {
		v.hasher.DummyVerify(secret)
		return Outcome{Account: acct, Reason: ReasonNoPassword}, ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(secret, acct.PasswordHash)
	if err != nil {
		// An unparseable stored hash is treated as a mismatch.
		v.log.Warn(ctx, "stored password hash rejected", "account_id", acct.ID, "error", err)
	}
	if err != nil || !ok {
		return v.fail(ctx, acct)
	}

	if err := v.lockout.RecordSuccess(ctx, acct); err != nil {
		return Outcome{Account: acct}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := Outcome{Account: acct}
	if v.config.UpgradeOnLogin && v.hasher.NeedsUpgrade(acct.PasswordHash) {
		out.Upgraded = v.upgrade(ctx, acct, secret)
	}
	return out, nil
}

func (v *Verifier) fail(ctx context.Context, acct *store.Account) (Outcome, error) {
	res, err := v.lockout.RecordFailure(ctx, acct)
	if err != nil {
		return Outcome{Account: acct}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	acct.FailedLoginAttempts = res.Attempts
	acct.LockoutUntil = res.LockoutUntil

	out := Outcome{
		Account:       acct,
		Reason:        ReasonMismatch,
		Attempts:      res.Attempts,
		LockoutUntil:  res.LockoutUntil,
		LockTriggered: res.Locked,
	}
	if res.Locked {
		out.Reason = ReasonLockoutTriggered
		return out, ErrAccountLocked
	}
	return out, ErrInvalidCredentials
}

// upgrade re-hashes secret with the current parameters. Failures are logged
// and never fail the login.
func (v *Verifier) upgrade(ctx context.Context, acct *store.Account, secret string) bool {
	hash, err := v.hasher.Hash(secret)
	if err != nil {
		v.log.Warn(ctx, "password hash upgrade generation failed", "account_id", acct.ID)
		return false
	}
	if err := v.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		v.log.Warn(ctx, "password hash upgrade update failed", "account_id", acct.ID, "error", err)
		return false
	}
	acct.PasswordHash = hash
	return true
}
