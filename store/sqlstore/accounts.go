package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/loginguard/store"
	"github.com/google/uuid"
)

// Timestamps are stored as unix milliseconds so the same statements run on
// PostgreSQL and SQLite. Placeholders use $N, which both drivers accept.

const accountColumns = `id, email, display_name, avatar_url, password_hash,
failed_login_attempts, lockout_until, last_login_at, status, is_admin,
locale, organization_id, created_at`

// Store is the SQL implementation of [store.AccountStore].
type Store struct {
	db DBTX
}

var _ store.AccountStore = (*Store)(nil)

// New returns a Store bound to db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.Account, error) {
	var (
		a           store.Account
		status      string
		lockout     sql.NullInt64
		lastLogin   sql.NullInt64
		createdAtMs int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.DisplayName, &a.AvatarURL, &a.PasswordHash,
		&a.FailedLoginAttempts, &lockout, &lastLogin, &status, &a.IsAdmin,
		&a.Locale, &a.OrganizationID, &createdAtMs,
	)
	if err != nil {
		return nil, err
	}
	a.Status = store.Status(status)
	a.LockoutUntil = fromMillis(lockout)
	a.LastLoginAt = fromMillis(lastLogin)
	a.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &a, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, store.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (s *Store) RecordFailedLogin(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (store.FailureRecord, error) {
	query :=
		`UPDATE accounts
		 SET failed_login_attempts = failed_login_attempts + 1,
		     lockout_until = CASE
		         WHEN failed_login_attempts + 1 >= $2 AND (lockout_until IS NULL OR lockout_until <= $3) THEN $4
		         ELSE lockout_until END,
		     locked_at_attempt = CASE
		         WHEN failed_login_attempts + 1 >= $2 AND (lockout_until IS NULL OR lockout_until <= $3) THEN failed_login_attempts + 1
		         ELSE locked_at_attempt END
		 WHERE id = $1
		 RETURNING failed_login_attempts, lockout_until, locked_at_attempt`

	var (
		rec      store.FailureRecord
		lockout  sql.NullInt64
		lockedAt int
	)
	err := s.db.QueryRowContext(ctx, query, id, threshold, now.UnixMilli(), lockUntil.UnixMilli()).
		Scan(&rec.Attempts, &lockout, &lockedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.FailureRecord{}, store.ErrNotFound
		}
		return store.FailureRecord{}, fmt.Errorf("db error: %w", err)
	}
	rec.LockoutUntil = fromMillis(lockout)
	rec.Locked = rec.LockoutUntil != nil && lockedAt == rec.Attempts
	return rec, nil
}

func (s *Store) ResetFailedLogins(ctx context.Context, id string) error {
	query :=
		`UPDATE accounts
		 SET failed_login_attempts = 0, lockout_until = NULL, locked_at_attempt = 0
		 WHERE id = $1`

	return s.execOne(ctx, query, id)
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) (*store.Account, error) {
	query := `UPDATE accounts SET last_login_at = $2 WHERE id = $1 RETURNING ` + accountColumns

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, id, at.UnixMilli()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// Create inserts a new account. A conflicting email yields no row, which is
// reported as [store.ErrDuplicate] without a driver-specific error code.
func (s *Store) Create(ctx context.Context, in store.NewAccount, createdAt time.Time) (*store.Account, error) {
	query :=
		`INSERT INTO accounts (id, email, display_name, avatar_url, password_hash,
		     status, is_admin, locale, organization_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING ` + accountColumns

	status := in.Status
	if !status.Valid() {
		status = store.StatusPending
	}

	a, err := scanAccount(s.db.QueryRowContext(ctx, query,
		uuid.NewString(), store.NormalizeEmail(in.Email), in.DisplayName, in.AvatarURL, in.PasswordHash,
		string(status), in.IsAdmin, in.Locale, in.OrganizationID, createdAt.UnixMilli(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (s *Store) ClearExpiredLockouts(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`UPDATE accounts
		 SET failed_login_attempts = 0, lockout_until = NULL, locked_at_attempt = 0
		 WHERE lockout_until IS NOT NULL AND lockout_until <= $1`

	res, err := s.db.ExecContext(ctx, query, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
