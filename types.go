package loginguard

import (
	"time"

	"github.com/MrEthical07/loginguard/jwt"
	"github.com/MrEthical07/loginguard/store"
)

// LoginRequest is a local-credential login attempt.
type LoginRequest struct {
	Email    string
	Password string
	// Origin identifies the client network address for rate limiting. When
	// empty, the value from WithClientOrigin is used; when that is empty
	// too, the attempt counts against the shared unknown-origin bucket.
	Origin string
}

// FederatedIdentity is an identity already verified by an external provider.
type FederatedIdentity struct {
	Email       string
	DisplayName string
	AvatarURL   string
	Provider    string
}

// Session is the claim set carried by a session token. It is a snapshot
// taken at issuance and is not refreshed when the account changes.
type Session struct {
	AccountID      string       `json:"account_id"`
	DisplayName    string       `json:"display_name"`
	Email          string       `json:"email"`
	IsAdmin        bool         `json:"is_admin"`
	Locale         string       `json:"locale,omitempty"`
	Status         store.Status `json:"status"`
	LastLoginAt    *time.Time   `json:"last_login_at,omitempty"`
	OrganizationID string       `json:"organization_id,omitempty"`
	IssuedAt       time.Time    `json:"issued_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Session   Session   `json:"session"`
	// Provisioned is set when a federated login created the account.
	Provisioned bool `json:"provisioned,omitempty"`
}

func sessionFromClaims(c *jwt.SessionClaims) Session {
	s := Session{
		AccountID:      c.Subject,
		DisplayName:    c.Name,
		Email:          c.Email,
		IsAdmin:        c.Admin,
		Locale:         c.Locale,
		Status:         store.Status(c.Status),
		LastLoginAt:    c.LastLoginAt(),
		OrganizationID: c.OrganizationID,
		ExpiresAt:      c.ExpiresAtTime(),
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	return s
}
