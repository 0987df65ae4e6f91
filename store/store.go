package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup key.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned by Create when the normalized email is already taken.
	ErrDuplicate = errors.New("account already exists")
)

// Status is the lifecycle state of an account.
type Status string

const (
	// StatusPending marks an account awaiting administrator activation.
	StatusPending Status = "PENDING"
	// StatusActive marks an account in normal use.
	StatusActive Status = "ACTIVE"
	// StatusInactive marks an account switched off by an administrator.
	StatusInactive Status = "INACTIVE"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Account is the persisted login record.
//
// LockoutUntil is only ever non-nil while FailedLoginAttempts has reached the
// lockout threshold; both are cleared by the same statement.
type Account struct {
	ID                  string
	Email               string
	DisplayName         string
	AvatarURL           string
	PasswordHash        string
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastLoginAt         *time.Time
	Status              Status
	IsAdmin             bool
	Locale              string
	OrganizationID      string
	CreatedAt           time.Time
}

// HasPassword reports whether the account can authenticate with a local secret.
// Accounts provisioned from a federated identity carry no hash.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// NewAccount is the input for [AccountStore.Create].
type NewAccount struct {
	Email          string
	DisplayName    string
	AvatarURL      string
	PasswordHash   string
	Status         Status
	IsAdmin        bool
	Locale         string
	OrganizationID string
}

// FailureRecord is the post-update state returned by
// [AccountStore.RecordFailedLogin].
type FailureRecord struct {
	Attempts     int
	LockoutUntil *time.Time
	// Locked is true only for the single update that moved the account
	// into the locked state.
	Locked bool
}

// AccountStore persists accounts and their lockout counters. Counter updates
// must be single atomic statements; implementations never read-modify-write
// in application memory.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// RecordFailedLogin increments the failure counter. When the incremented
	// value reaches threshold and the account is not locked at now, the
	// lockout is set to lockUntil.
	RecordFailedLogin(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (FailureRecord, error)
	ResetFailedLogins(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) (*Account, error)
	Create(ctx context.Context, in NewAccount, createdAt time.Time) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// ClearExpiredLockouts resets counters of accounts whose lockout elapsed
	// at or before now and returns how many were cleared.
	ClearExpiredLockouts(ctx context.Context, now time.Time) (int64, error)
}

// NormalizeEmail returns the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
