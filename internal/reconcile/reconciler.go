// Package reconcile maps a verified identity onto the local account record,
// provisioning one for federated identities seen for the first time.
//
// Lockout and rate limiting do not apply here. Local identities arrive
// already verified, and federated ones are vouched for by their provider.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/loginguard/internal/logging"
	"github.com/MrEthical07/loginguard/notify"
	"github.com/MrEthical07/loginguard/store"
)

var (
	// ErrInvalidIdentity is returned for a federated identity without an email.
	ErrInvalidIdentity = errors.New("federated identity has no email")
	// ErrUnavailable wraps account store failures.
	ErrUnavailable = errors.New("account store unavailable")
)

// Accounts is the subset of [store.AccountStore] used for reconciliation.
type Accounts interface {
	GetByEmail(ctx context.Context, email string) (*store.Account, error)
	RecordLogin(ctx context.Context, id string, at time.Time) (*store.Account, error)
	Create(ctx context.Context, in store.NewAccount, createdAt time.Time) (*store.Account, error)
}

// Identity is an assertion from an external identity provider.
type Identity struct {
	Email       string
	DisplayName string
	AvatarURL   string
	Provider    string
}

// Config holds provisioning defaults.
type Config struct {
	// OpenRegistration activates provisioned accounts immediately instead
	// of leaving them PENDING.
	OpenRegistration      bool
	DefaultLocale         string
	DefaultOrganizationID string
}

// Result is the reconciled account.
type Result struct {
	Account     *store.Account
	Provisioned bool
}

// Reconciler finds or creates accounts and stamps login metadata.
type Reconciler struct {
	accounts Accounts
	notifier notify.Notifier
	config   Config
	now      func() time.Time
	log      logging.Logger
}

// New creates a Reconciler. Nil notifier, now or log fall back to no-op,
// time.Now and a discard logger.
func New(accounts Accounts, notifier notify.Notifier, cfg Config, now func() time.Time, log logging.Logger) *Reconciler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Reconciler{accounts: accounts, notifier: notifier, config: cfg, now: now, log: log}
}

// ResolveLocal stamps LastLoginAt on an account whose credentials were
// already verified and returns the updated record.
func (r *Reconciler) ResolveLocal(ctx context.Context, a *store.Account) (*store.Account, error) {
	updated, err := r.accounts.RecordLogin(ctx, a.ID, r.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return updated, nil
}

// ResolveFederated returns the account for id's email, creating it when it
// does not exist. A concurrent creation of the same email resolves to the
// winning record, so one email never yields two accounts.
func (r *Reconciler) ResolveFederated(ctx context.Context, id Identity) (Result, error) {
	email := store.NormalizeEmail(id.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Result{}, ErrInvalidIdentity
	}

	existing, err := r.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return r.stamp(ctx, existing, false)
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status := store.StatusPending
	if r.config.OpenRegistration {
		status = store.StatusActive
	}
	now := r.now()
	created, err := r.accounts.Create(ctx, store.NewAccount{
		Email:          email,
		DisplayName:    displayName(id),
		AvatarURL:      id.AvatarURL,
		Status:         status,
		IsAdmin:        false,
		Locale:         r.config.DefaultLocale,
		OrganizationID: r.config.DefaultOrganizationID,
	}, now)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			winner, gerr := r.accounts.GetByEmail(ctx, email)
			if gerr != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, gerr)
			}
			return r.stamp(ctx, winner, false)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res, err := r.stamp(ctx, created, true)
	if err != nil {
		return Result{}, err
	}
	r.announce(ctx, res.Account, id.Provider)
	return res, nil
}

func (r *Reconciler) stamp(ctx context.Context, a *store.Account, provisioned bool) (Result, error) {
	updated, err := r.accounts.RecordLogin(ctx, a.ID, r.now())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Result{Account: updated, Provisioned: provisioned}, nil
}

// announce is fire-and-forget: a failed notification is logged and the
// login proceeds.
func (r *Reconciler) announce(ctx context.Context, a *store.Account, provider string) {
	err := r.notifier.Notify(context.WithoutCancel(ctx), notify.Event{
		Type:        notify.EventAccountProvisioned,
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Status:      string(a.Status),
		Provider:    provider,
		OccurredAt:  r.now(),
	})
	if err != nil {
		r.log.Warn(ctx, "admin notification not sent", "event", notify.EventAccountProvisioned, "account_id", a.ID, "error", err)
	}
}

func displayName(id Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(store.NormalizeEmail(id.Email), "@")
	return local
}
