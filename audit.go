package loginguard

import (
	"context"
	"errors"
	"io"

	"github.com/MrEthical07/loginguard/internal/audit"
)

// AuditEvent is one audit record. Reason carries the internal denial cause
// that the credential caller never sees.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that buffers events in a channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventAccountLocked         = "account_locked"
	auditEventFederatedLoginSuccess = "federated_login_success"
	auditEventFederatedLoginFailure = "federated_login_failure"
	auditEventAccountProvisioned    = "account_provisioned"
	auditEventPasswordUpgraded      = "password_upgraded"
)

// AuditErrorCode is the stable error classification written to audit events.
type AuditErrorCode string

const (
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrSessionIssue       AuditErrorCode = "session_issue_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditRecord struct {
	eventType string
	success   bool
	accountID string
	email     string
	origin    string
	reason    string
	err       error
	metadata  map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}
	if rec.origin == "" {
		rec.origin = ClientOriginFromContext(ctx)
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: rec.eventType,
		AccountID: rec.accountID,
		Email:     rec.email,
		Origin:    rec.origin,
		Success:   rec.success,
		Reason:    rec.reason,
		Metadata:  rec.metadata,
	}
	if code := auditErrorCode(rec.err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrSessionIssueFailed):
		return auditErrSessionIssue
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
