package loginguard

import "time"

// SecurityReport summarizes the effective security posture of an Engine.
type SecurityReport struct {
	ProductionMode    bool
	SigningAlgorithm  string
	SessionMaxAge     time.Duration
	Argon2            PasswordConfigReport
	LockoutThreshold  int
	LockoutDuration   time.Duration
	RateLimitAttempts int
	RateLimitWindow   time.Duration
	RateLimitFailOpen bool
	OpenRegistration  bool
	TrimsSecrets      bool
	UpgradesHashes    bool
	AuditEnabled      bool
	NotifyEnabled     bool
}

// PasswordConfigReport is the argon2id cost in effect for new hashes.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.Session.SigningMethod,
		SessionMaxAge:    e.config.Session.MaxAge,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutThreshold:  e.config.Lockout.Threshold,
		LockoutDuration:   e.config.Lockout.Duration,
		RateLimitAttempts: e.config.RateLimit.MaxAttempts,
		RateLimitWindow:   e.config.RateLimit.Window,
		RateLimitFailOpen: e.config.RateLimit.FailOpen,
		OpenRegistration:  e.config.Registration.OpenRegistration,
		TrimsSecrets:      e.config.Password.TrimWhitespace,
		UpgradesHashes:    e.config.Password.UpgradeOnLogin,
		AuditEnabled:      e.config.Audit.Enabled,
		NotifyEnabled:     e.config.Notify.Enabled,
	}
}
