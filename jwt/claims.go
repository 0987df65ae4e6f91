package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the claim set of a session token.
type SessionClaims struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Admin          bool   `json:"adm"`
	Locale         string `json:"lang,omitempty"`
	Status         string `json:"status"`
	LastLogin      int64  `json:"llt,omitempty"`
	OrganizationID string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// AccountID returns the subject claim.
func (c *SessionClaims) AccountID() string {
	return c.Subject
}

// LastLoginAt returns the last-login claim, or nil when absent.
func (c *SessionClaims) LastLoginAt() *time.Time {
	if c.LastLogin == 0 {
		return nil
	}
	t := time.Unix(c.LastLogin, 0).UTC()
	return &t
}

// ExpiresAtTime returns the expiry claim, or the zero time when absent.
func (c *SessionClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
