package loginguard

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Build clones it; later changes
// by the caller do not affect a running engine.
type Config struct {
	Lockout      LockoutConfig
	RateLimit    RateLimitConfig
	Session      SessionConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Notify       NotifyConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Security     SecurityConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls per-account progressive lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the per-origin login budget.
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
	// FailOpen admits logins when the counter store is unreachable. The
	// default rejects them with ErrRateLimiterUnavailable.
	FailOpen  bool
	KeyPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session token issuance.
type SessionConfig struct {
	MaxAge        time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// Defaults copied into provisioned accounts and used when an account
	// has no value of its own.
	DefaultLocale         string
	DefaultOrganizationID string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and secret handling.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
	// TrimWhitespace strips leading and trailing whitespace from the
	// candidate secret before comparison.
	TrimWhitespace bool
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls federated provisioning.
type RegistrationConfig struct {
	// OpenRegistration marks provisioned accounts ACTIVE instead of PENDING.
	OpenRegistration bool
}

/*
====================================
NOTIFY / AUDIT / METRICS
====================================
*/

// NotifyConfig controls the admin-notification dispatcher.
type NotifyConfig struct {
	Enabled       bool
	BufferSize    int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds one sink write. Zero means no deadline.
	SinkTimeout time.Duration
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode rejects configurations that are only acceptable in
	// development.
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the reference deployment settings. Session signing
// keys are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: 10,
			Window:      15 * time.Minute,
			FailOpen:    false,
			KeyPrefix:   "lg:rl",
		},
		Session: SessionConfig{
			MaxAge:        30 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "loginguard",
			DefaultLocale: "en",
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
			TrimWhitespace:   true,
		},
		Registration: RegistrationConfig{
			OpenRegistration: false,
		},
		Notify: NotifyConfig{
			Enabled:       true,
			BufferSize:    256,
			Timeout:       5 * time.Second,
			RatePerSecond: 10,
			Burst:         20,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Rate limit
	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("RateLimit MaxAttempts must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}

	// Session
	if c.Session.MaxAge <= 0 {
		return errors.New("Session MaxAge must be > 0")
	}
	switch c.Session.SigningMethod {
	case "hs256":
		if len(c.Session.PrivateKey) < 32 {
			return errors.New("hs256 requires PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Session signing method")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}

	// Notify
	if c.Notify.Enabled {
		if c.Notify.BufferSize <= 0 {
			return errors.New("Notify BufferSize must be > 0 when notifications are enabled")
		}
		if c.Notify.Timeout <= 0 {
			return errors.New("Notify Timeout must be > 0 when notifications are enabled")
		}
		if c.Notify.RatePerSecond < 0 || c.Notify.Burst < 0 {
			return errors.New("Notify rate settings must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	// Production
	if c.Security.ProductionMode {
		if c.Session.MaxAge > time.Hour {
			return errors.New("ProductionMode requires Session MaxAge <= 1h")
		}
		if c.Password.Memory < 65536 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.RateLimit.FailOpen {
			return errors.New("ProductionMode requires RateLimit FailOpen to be false")
		}
		if c.Lockout.Threshold > 20 {
			return errors.New("ProductionMode requires Lockout Threshold <= 20")
		}
	}

	return nil
}
