// Package config loads the loginguard server configuration.
//
// Sources, later wins:
//
//  1. built-in defaults (loginguard.DefaultConfig plus server settings)
//  2. an optional TOML file
//  3. LOGINGUARD_* environment variables
//
// The result is translated into a loginguard.Config by [Config.Engine].
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MrEthical07/loginguard"
)

const (
	envPrefix    = "LOGINGUARD_"
	base64Prefix = "base64:"
)

// Config is the complete server configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Redis        RedisConfig        `toml:"redis"`
	NATS         NATSConfig         `toml:"nats"`
	Log          LogConfig          `toml:"log"`
	Session      SessionConfig      `toml:"session"`
	Lockout      LockoutConfig      `toml:"lockout"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Password     PasswordConfig     `toml:"password"`
	Registration RegistrationConfig `toml:"registration"`
	Notify       NotifyConfig       `toml:"notify"`
	Audit        AuditConfig        `toml:"audit"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Maintenance  MaintenanceConfig  `toml:"maintenance"`
	Federation   FederationConfig   `toml:"federation"`
	Production   bool               `toml:"production"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	IdleTimeout     time.Duration `toml:"idle_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	MaxBodyBytes    int64         `toml:"max_body_bytes"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	// Migrate applies embedded migrations at startup.
	Migrate bool `toml:"migrate"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// Embedded runs an in-process Redis for development.
	Embedded bool `toml:"embedded"`
}

type NATSConfig struct {
	// URL is empty to write notifications to the log instead.
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type SessionConfig struct {
	MaxAge        time.Duration `toml:"max_age"`
	SigningMethod string        `toml:"signing_method"`
	// Secret is the HS256 key or the Ed25519 private key. A "base64:"
	// prefix marks encoded key material.
	Secret    string        `toml:"secret"`
	PublicKey string        `toml:"public_key"`
	KeyID     string        `toml:"key_id"`
	Issuer    string        `toml:"issuer"`
	Audience  string        `toml:"audience"`
	Leeway    time.Duration `toml:"leeway"`

	DefaultLocale         string `toml:"default_locale"`
	DefaultOrganizationID string `toml:"default_organization_id"`
}

type LockoutConfig struct {
	Threshold int           `toml:"threshold"`
	Duration  time.Duration `toml:"duration"`
}

type RateLimitConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	Window      time.Duration `toml:"window"`
	FailOpen    bool          `toml:"fail_open"`
	KeyPrefix   string        `toml:"key_prefix"`
}

type PasswordConfig struct {
	Memory         uint32 `toml:"memory_kib"`
	Time           uint32 `toml:"time"`
	Parallelism    uint8  `toml:"parallelism"`
	MaxBytes       int    `toml:"max_bytes"`
	UpgradeOnLogin bool   `toml:"upgrade_on_login"`
	TrimWhitespace bool   `toml:"trim_whitespace"`
}

type RegistrationConfig struct {
	Open bool `toml:"open"`
}

type NotifyConfig struct {
	Enabled       bool          `toml:"enabled"`
	BufferSize    int           `toml:"buffer_size"`
	Timeout       time.Duration `toml:"timeout"`
	RatePerSecond float64       `toml:"rate_per_second"`
	Burst         int           `toml:"burst"`
}

type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
	// SinkTimeout is the deadline handed to each audit sink call.
	SinkTimeout time.Duration `toml:"sink_timeout"`
	// File receives JSON lines. Empty writes to stdout.
	File string `toml:"file"`
}

type MetricsConfig struct {
	Enabled           bool `toml:"enabled"`
	LatencyHistograms bool `toml:"latency_histograms"`
}

type MaintenanceConfig struct {
	// LockoutSweepInterval clears elapsed lockouts periodically. Zero
	// disables the sweep; logins ignore elapsed lockouts regardless.
	LockoutSweepInterval time.Duration `toml:"lockout_sweep_interval"`
}

type FederationConfig struct {
	// Token authorizes the identity-provider bridge that calls the
	// federated login endpoint. Empty disables the endpoint.
	Token string `toml:"token"`
}

// Default returns the server defaults layered on loginguard.DefaultConfig.
func Default() *Config {
	lib := loginguard.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 16,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			DSN:     "file:loginguard.db?_pragma=busy_timeout(5000)",
			Migrate: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			Subject: "loginguard.admin.notifications",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			MaxAge:        lib.Session.MaxAge,
			SigningMethod: lib.Session.SigningMethod,
			Issuer:        lib.Session.Issuer,
			DefaultLocale: lib.Session.DefaultLocale,
		},
		Lockout: LockoutConfig{
			Threshold: lib.Lockout.Threshold,
			Duration:  lib.Lockout.Duration,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: lib.RateLimit.MaxAttempts,
			Window:      lib.RateLimit.Window,
			FailOpen:    lib.RateLimit.FailOpen,
			KeyPrefix:   lib.RateLimit.KeyPrefix,
		},
		Password: PasswordConfig{
			Memory:         lib.Password.Memory,
			Time:           lib.Password.Time,
			Parallelism:    lib.Password.Parallelism,
			MaxBytes:       lib.Password.MaxPasswordBytes,
			UpgradeOnLogin: lib.Password.UpgradeOnLogin,
			TrimWhitespace: lib.Password.TrimWhitespace,
		},
		Notify: NotifyConfig{
			Enabled:       lib.Notify.Enabled,
			BufferSize:    lib.Notify.BufferSize,
			Timeout:       lib.Notify.Timeout,
			RatePerSecond: lib.Notify.RatePerSecond,
			Burst:         lib.Notify.Burst,
		},
		Audit: AuditConfig{
			Enabled:     lib.Audit.Enabled,
			BufferSize:  lib.Audit.BufferSize,
			DropIfFull:  lib.Audit.DropIfFull,
			SinkTimeout: lib.Audit.SinkTimeout,
		},
		Metrics: MetricsConfig{
			Enabled:           lib.Metrics.Enabled,
			LatencyHistograms: lib.Metrics.EnableLatencyHistograms,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Keys missing from the file keep their
// current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides reads LOGINGUARD_* variables. Malformed numeric or
// duration values are errors rather than silently ignored.
func (c *Config) ApplyEnvOverrides() error {
	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Session.Secret = getEnv("SESSION_SECRET", c.Session.Secret)
	c.Session.PublicKey = getEnv("SESSION_PUBLIC_KEY", c.Session.PublicKey)
	c.Session.SigningMethod = getEnv("SESSION_SIGNING_METHOD", c.Session.SigningMethod)
	c.Session.Issuer = getEnv("SESSION_ISSUER", c.Session.Issuer)
	c.Session.Audience = getEnv("SESSION_AUDIENCE", c.Session.Audience)
	c.Federation.Token = getEnv("FEDERATION_TOKEN", c.Federation.Token)

	var err error
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Lockout.Threshold, err = getEnvInt("LOCKOUT_THRESHOLD", c.Lockout.Threshold); err != nil {
		return err
	}
	if c.Lockout.Duration, err = getEnvDuration("LOCKOUT_DURATION", c.Lockout.Duration); err != nil {
		return err
	}
	if c.RateLimit.MaxAttempts, err = getEnvInt("RATE_LIMIT_MAX_ATTEMPTS", c.RateLimit.MaxAttempts); err != nil {
		return err
	}
	if c.RateLimit.Window, err = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window); err != nil {
		return err
	}
	if c.RateLimit.FailOpen, err = getEnvBool("RATE_LIMIT_FAIL_OPEN", c.RateLimit.FailOpen); err != nil {
		return err
	}
	if c.Session.MaxAge, err = getEnvDuration("SESSION_MAX_AGE", c.Session.MaxAge); err != nil {
		return err
	}
	if c.Registration.Open, err = getEnvBool("OPEN_REGISTRATION", c.Registration.Open); err != nil {
		return err
	}
	if c.Redis.Embedded, err = getEnvBool("DEV", c.Redis.Embedded); err != nil {
		return err
	}
	if c.Production, err = getEnvBool("PRODUCTION", c.Production); err != nil {
		return err
	}
	if c.Audit.Enabled, err = getEnvBool("AUDIT_ENABLED", c.Audit.Enabled); err != nil {
		return err
	}
	if c.Notify.Enabled, err = getEnvBool("NOTIFY_ENABLED", c.Notify.Enabled); err != nil {
		return err
	}
	if c.Maintenance.LockoutSweepInterval, err = getEnvDuration("LOCKOUT_SWEEP_INTERVAL", c.Maintenance.LockoutSweepInterval); err != nil {
		return err
	}
	return nil
}

// Validate checks server settings. Engine settings are validated by
// loginguard.Config.Validate when the engine is built.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database driver %q not supported", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if !c.Redis.Embedded && c.Redis.Addr == "" {
		return errors.New("redis addr is required unless redis is embedded")
	}
	if c.Session.Secret == "" {
		return errors.New("session secret is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server max_body_bytes must be > 0")
	}
	if c.Maintenance.LockoutSweepInterval < 0 {
		return errors.New("maintenance lockout_sweep_interval must be >= 0")
	}
	if c.Production && c.Redis.Embedded {
		return errors.New("embedded redis is not allowed in production")
	}
	return nil
}

// Engine translates the server configuration into a loginguard.Config.
func (c *Config) Engine() (loginguard.Config, error) {
	out := loginguard.DefaultConfig()

	priv, err := decodeKey(c.Session.Secret, c.Session.SigningMethod)
	if err != nil {
		return out, fmt.Errorf("session secret: %w", err)
	}
	out.Session.PrivateKey = priv
	if c.Session.PublicKey != "" {
		pub, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(c.Session.PublicKey, base64Prefix))
		if err != nil {
			return out, fmt.Errorf("session public key: %w", err)
		}
		out.Session.PublicKey = pub
	}
	out.Session.MaxAge = c.Session.MaxAge
	out.Session.SigningMethod = c.Session.SigningMethod
	out.Session.KeyID = c.Session.KeyID
	out.Session.Issuer = c.Session.Issuer
	out.Session.Audience = c.Session.Audience
	out.Session.Leeway = c.Session.Leeway
	out.Session.DefaultLocale = c.Session.DefaultLocale
	out.Session.DefaultOrganizationID = c.Session.DefaultOrganizationID

	out.Lockout.Threshold = c.Lockout.Threshold
	out.Lockout.Duration = c.Lockout.Duration

	out.RateLimit.MaxAttempts = c.RateLimit.MaxAttempts
	out.RateLimit.Window = c.RateLimit.Window
	out.RateLimit.FailOpen = c.RateLimit.FailOpen
	out.RateLimit.KeyPrefix = c.RateLimit.KeyPrefix

	out.Password.Memory = c.Password.Memory
	out.Password.Time = c.Password.Time
	out.Password.Parallelism = c.Password.Parallelism
	out.Password.MaxPasswordBytes = c.Password.MaxBytes
	out.Password.UpgradeOnLogin = c.Password.UpgradeOnLogin
	out.Password.TrimWhitespace = c.Password.TrimWhitespace

	out.Registration.OpenRegistration = c.Registration.Open

	out.Notify.Enabled = c.Notify.Enabled
	out.Notify.BufferSize = c.Notify.BufferSize
	out.Notify.Timeout = c.Notify.Timeout
	out.Notify.RatePerSecond = c.Notify.RatePerSecond
	out.Notify.Burst = c.Notify.Burst

	out.Audit.Enabled = c.Audit.Enabled
	out.Audit.BufferSize = c.Audit.BufferSize
	out.Audit.DropIfFull = c.Audit.DropIfFull
	out.Audit.SinkTimeout = c.Audit.SinkTimeout

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.LatencyHistograms

	out.Security.ProductionMode = c.Production

	return out, out.Validate()
}

// decodeKey accepts "base64:<data>" or, for hs256, a raw secret string.
func decodeKey(secret, method string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty")
	}
	if enc, ok := strings.CutPrefix(secret, base64Prefix); ok {
		return base64.StdEncoding.DecodeString(enc)
	}
	if method == "ed25519" {
		return nil, errors.New("ed25519 key must use the base64: prefix")
	}
	return []byte(secret), nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
