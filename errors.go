package loginguard

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for a request missing its identity or
	// secret. It is a caller error, not a security decision, and no I/O
	// happens before it.
	ErrInvalidRequest = errors.New("invalid login request")

	// ErrAuthenticationFailed matches every security decision. Its message is
	// the only one a credential caller should ever see.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Security-decision reasons. They are wrapped in a decision error whose
	// message is always "authentication failed"; errors.Is still reaches them
	// for logs and metrics.
	ErrRateLimited        = errors.New("login rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountNotFound    = errors.New("account not found")

	// ErrDependencyUnavailable matches every dependency failure. It is never
	// a security decision and the caller may retry with backoff.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	ErrRateLimiterUnavailable  = errors.New("rate limiter unavailable")
	ErrAccountStoreUnavailable = errors.New("account store unavailable")
	ErrSessionIssueFailed      = errors.New("session issuance failed")

	// ErrInvalidSession is returned by ParseSession for any unusable token.
	ErrInvalidSession = errors.New("invalid session token")

	// ErrEngineNotReady is returned when a required dependency was not
	// configured on the Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// decisionError hides the denial reason behind one uniform message.
type decisionError struct {
	reason error
}

func (e *decisionError) Error() string {
	return ErrAuthenticationFailed.Error()
}

func (e *decisionError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

func (e *decisionError) Unwrap() error {
	return e.reason
}

func denied(reason error) error {
	return &decisionError{reason: reason}
}

func dependencyFailure(kind error, cause error) error {
	return fmt.Errorf("%w: %w: %v", ErrDependencyUnavailable, kind, cause)
}

// IsSecurityDecision reports whether err is a rate-limit, credential or
// lockout denial.
func IsSecurityDecision(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// DenialReason returns the internal reason behind a security decision, or
// nil for other errors. Intended for logs and metrics only.
func DenialReason(err error) error {
	var de *decisionError
	if errors.As(err, &de) {
		return de.reason
	}
	return nil
}
