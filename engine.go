package loginguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/loginguard/internal/audit"
	"github.com/MrEthical07/loginguard/internal/credential"
	"github.com/MrEthical07/loginguard/internal/lockout"
	"github.com/MrEthical07/loginguard/internal/logging"
	"github.com/MrEthical07/loginguard/internal/rate"
	"github.com/MrEthical07/loginguard/internal/reconcile"
	"github.com/MrEthical07/loginguard/jwt"
	"github.com/MrEthical07/loginguard/notify"
	"github.com/MrEthical07/loginguard/store"
)

// Engine runs login attempts through rate limiting, credential
// verification, identity reconciliation and session issuance.
//
// An Engine is built once through [Builder.Build] and is safe for
// concurrent use.
type Engine struct {
	config     Config
	store      store.AccountStore
	limiter    *rate.Limiter
	tracker    *lockout.Tracker
	verifier   *credential.Verifier
	reconciler *reconcile.Reconciler
	jwtManager *jwt.Manager
	audit      *audit.Dispatcher
	notifier   *notify.Dispatcher
	metrics    *Metrics
	log        logging.Logger
	now        func() time.Time
}

// Close drains the audit and notification queues. The injected store and
// Redis client stay open; their owner closes them.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationsDropped returns how many admin notifications were dropped
// because the queue was full.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil || e.notifier == nil {
		return 0
	}
	return e.notifier.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricLoginLatency, time.Since(start))
}

// Login verifies a local email/secret pair and issues a session.
//
// Every security decision (rate limit, unknown account, wrong secret,
// lockout) returns an error whose message is "authentication failed" and
// which matches ErrAuthenticationFailed; errors.Is still reaches the
// specific reason. Dependency failures match ErrDependencyUnavailable.
// Missing fields return ErrInvalidRequest before any I/O.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeLatency(start)

	email := store.NormalizeEmail(req.Email)
	if !e.validRequest(email, req.Password) {
		e.metricInc(MetricInvalidRequest)
		return nil, ErrInvalidRequest
	}

	origin := req.Origin
	if origin == "" {
		origin = ClientOriginFromContext(ctx)
	}
	log := e.log.With("origin", origin)

	if err := e.checkRate(ctx, origin, log); err != nil {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginRateLimited,
			email:     email,
			origin:    origin,
			err:       err,
		})
		return nil, err
	}

	out, err := e.verifier.Verify(ctx, email, req.Password)
	if err != nil {
		return nil, e.loginDenied(ctx, log, email, origin, out, err)
	}

	if out.Upgraded {
		e.metricInc(MetricPasswordUpgraded)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventPasswordUpgraded,
			success:   true,
			accountID: out.Account.ID,
			origin:    origin,
		})
	}

	acct, err := e.reconciler.ResolveLocal(ctx, out.Account)
	if err != nil {
		err = dependencyFailure(ErrAccountStoreUnavailable, err)
		e.metricInc(MetricDependencyFailure)
		log.Error(ctx, "login reconcile failed", "account_id", out.Account.ID, "error", err)
		e.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, accountID: out.Account.ID, origin: origin, err: err})
		return nil, err
	}

	result, err := e.issue(acct)
	if err != nil {
		e.metricInc(MetricDependencyFailure)
		log.Error(ctx, "session issue failed", "account_id", acct.ID, "error", err)
		e.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, accountID: acct.ID, origin: origin, err: err})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	log.Info(ctx, "login succeeded", "event", auditEventLoginSuccess, "account_id", acct.ID)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLoginSuccess,
		success:   true,
		accountID: acct.ID,
		origin:    origin,
	})
	return result, nil
}

func (e *Engine) validRequest(email, secret string) bool {
	if email == "" {
		return false
	}
	if e.config.Password.TrimWhitespace {
		secret = strings.TrimSpace(secret)
	}
	if secret == "" {
		return false
	}
	limit := e.config.Password.MaxPasswordBytes
	return limit <= 0 || len(secret) <= limit
}

// checkRate applies the per-origin budget. An unreachable counter store
// rejects the attempt unless RateLimit.FailOpen is set.
func (e *Engine) checkRate(ctx context.Context, origin string, log logging.Logger) error {
	err := e.limiter.Check(ctx, origin)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricLoginRateLimited)
		log.Warn(ctx, "login rate limited", "event", auditEventLoginRateLimited)
		return denied(ErrRateLimited)
	case e.config.RateLimit.FailOpen:
		e.metricInc(MetricRateLimiterFailOpen)
		log.Warn(ctx, "rate limiter unavailable, admitting attempt", "error", err)
		return nil
	default:
		e.metricInc(MetricDependencyFailure)
		log.Error(ctx, "rate limiter unavailable", "error", err)
		return dependencyFailure(ErrRateLimiterUnavailable, err)
	}
}

// loginDenied maps a verifier error onto the public error surface and
// records it.
func (e *Engine) loginDenied(ctx context.Context, log logging.Logger, email, origin string, out credential.Outcome, verr error) error {
	var accountID string
	if out.Account != nil {
		accountID = out.Account.ID
	}

	var err error
	switch {
	case errors.Is(verr, credential.ErrAccountNotFound):
		err = denied(ErrAccountNotFound)
	case errors.Is(verr, credential.ErrAccountLocked):
		err = denied(ErrAccountLocked)
	case errors.Is(verr, credential.ErrInvalidCredentials):
		err = denied(ErrInvalidCredentials)
	default:
		err = dependencyFailure(ErrAccountStoreUnavailable, verr)
		e.metricInc(MetricDependencyFailure)
		log.Error(ctx, "credential check failed", "account_id", accountID, "error", err)
		e.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, accountID: accountID, origin: origin, err: err})
		return err
	}

	if out.LockTriggered {
		e.metricInc(MetricAccountLocked)
		e.announce(ctx, notify.EventAccountLocked, out.Account)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAccountLocked,
			accountID: accountID,
			origin:    origin,
			reason:    out.Reason,
			metadata:  lockMetadata(out),
		})
	}
	if out.Reason == credential.ReasonLocked {
		e.metricInc(MetricLoginLocked)
	}
	e.metricInc(MetricLoginFailure)

	log.Warn(ctx, "login denied", "event", auditEventLoginFailure, "account_id", accountID, "reason", out.Reason)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventLoginFailure,
		accountID: accountID,
		email:     email,
		origin:    origin,
		reason:    out.Reason,
		err:       err,
	})
	return err
}

func lockMetadata(out credential.Outcome) map[string]string {
	m := map[string]string{"attempts": strconv.Itoa(out.Attempts)}
	if out.LockoutUntil != nil {
		m["lockout_until"] = out.LockoutUntil.UTC().Format(time.RFC3339)
	}
	return m
}

// LoginFederated resolves an identity already verified by an external
// provider and issues a session. The first login for an email provisions
// an account, PENDING unless open registration is configured. Rate
// limiting and lockout do not apply.
func (e *Engine) LoginFederated(ctx context.Context, id FederatedIdentity) (*LoginResult, error) {
	if e == nil || e.reconciler == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeLatency(start)

	if store.NormalizeEmail(id.Email) == "" {
		e.metricInc(MetricInvalidRequest)
		return nil, ErrInvalidRequest
	}

	res, err := e.reconciler.ResolveFederated(ctx, reconcile.Identity{
		Email:       id.Email,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
		Provider:    id.Provider,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidIdentity) {
			e.metricInc(MetricInvalidRequest)
			return nil, ErrInvalidRequest
		}
		err = dependencyFailure(ErrAccountStoreUnavailable, err)
		e.metricInc(MetricFederatedLoginFailure)
		e.metricInc(MetricDependencyFailure)
		e.log.Error(ctx, "federated reconcile failed", "provider", id.Provider, "error", err)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventFederatedLoginFailure,
			email:     store.NormalizeEmail(id.Email),
			err:       err,
			metadata:  map[string]string{"provider": id.Provider},
		})
		return nil, err
	}

	acct := res.Account
	if res.Provisioned {
		e.metricInc(MetricAccountProvisioned)
		e.log.Info(ctx, "account provisioned", "event", auditEventAccountProvisioned, "account_id", acct.ID, "provider", id.Provider)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAccountProvisioned,
			success:   true,
			accountID: acct.ID,
			metadata:  map[string]string{"provider": id.Provider, "status": string(acct.Status)},
		})
	}

	result, err := e.issue(acct)
	if err != nil {
		e.metricInc(MetricFederatedLoginFailure)
		e.metricInc(MetricDependencyFailure)
		e.log.Error(ctx, "session issue failed", "account_id", acct.ID, "error", err)
		e.emitAudit(ctx, auditRecord{eventType: auditEventFederatedLoginFailure, accountID: acct.ID, err: err})
		return nil, err
	}
	result.Provisioned = res.Provisioned

	e.metricInc(MetricFederatedLoginSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventFederatedLoginSuccess,
		success:   true,
		accountID: acct.ID,
		metadata:  map[string]string{"provider": id.Provider},
	})
	return result, nil
}

// issue builds the claim snapshot for a and signs it. Locale and
// organization fall back to the configured defaults.
func (e *Engine) issue(a *store.Account) (*LoginResult, error) {
	locale := a.Locale
	if locale == "" {
		locale = e.config.Session.DefaultLocale
	}
	org := a.OrganizationID
	if org == "" {
		org = e.config.Session.DefaultOrganizationID
	}

	claims := jwt.SessionClaims{
		Name:           a.DisplayName,
		Email:          a.Email,
		Admin:          a.IsAdmin,
		Locale:         locale,
		Status:         string(a.Status),
		OrganizationID: org,
	}
	claims.Subject = a.ID
	if a.LastLoginAt != nil {
		claims.LastLogin = a.LastLoginAt.Unix()
	}

	token, signed, err := e.jwtManager.Issue(claims)
	if err != nil {
		return nil, dependencyFailure(ErrSessionIssueFailed, err)
	}
	e.metricInc(MetricSessionIssued)

	return &LoginResult{
		Token:     token,
		ExpiresAt: signed.ExpiresAtTime(),
		Session:   sessionFromClaims(signed),
	}, nil
}

// ParseSession validates a session token and returns its claims. Any
// failure returns an error matching ErrInvalidSession.
func (e *Engine) ParseSession(token string) (*jwt.SessionClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return claims, nil
}

// Session converts parsed claims into the public session view.
func (e *Engine) Session(claims *jwt.SessionClaims) Session {
	return sessionFromClaims(claims)
}

// SweepExpiredLockouts clears counters on accounts whose lockout elapsed.
// Login ignores elapsed lockouts on its own, so sweeping is optional.
func (e *Engine) SweepExpiredLockouts(ctx context.Context) (int64, error) {
	if e == nil || e.tracker == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.tracker.Sweep(ctx)
	if err != nil {
		return 0, dependencyFailure(ErrAccountStoreUnavailable, err)
	}
	if n > 0 {
		e.log.Info(ctx, "expired lockouts cleared", "count", n)
	}
	return n, nil
}

// announce queues an admin notification. It never blocks and never fails
// the caller. Queue drops are counted by the dispatcher.
func (e *Engine) announce(ctx context.Context, eventType string, a *store.Account) {
	if a == nil || e.notifier == nil {
		return
	}
	err := e.notifier.Notify(ctx, notify.Event{
		Type:        eventType,
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Status:      string(a.Status),
		OccurredAt:  e.now(),
	})
	if err != nil {
		e.log.Warn(ctx, "admin notification not sent", "event", eventType, "account_id", a.ID, "error", err)
	}
}
