package loginguard

import (
	"errors"
	"time"

	"github.com/MrEthical07/loginguard/internal/audit"
	"github.com/MrEthical07/loginguard/internal/credential"
	"github.com/MrEthical07/loginguard/internal/lockout"
	"github.com/MrEthical07/loginguard/internal/logging"
	"github.com/MrEthical07/loginguard/internal/rate"
	"github.com/MrEthical07/loginguard/internal/reconcile"
	"github.com/MrEthical07/loginguard/jwt"
	"github.com/MrEthical07/loginguard/notify"
	"github.com/MrEthical07/loginguard/password"
	"github.com/MrEthical07/loginguard/store"
	"github.com/redis/go-redis/v9"
)

// Builder collects dependencies and configuration for an Engine. A Builder
// is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.AccountStore

	notifier  notify.Notifier
	auditSink AuditSink
	logger    logging.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client holding rate-limit buckets.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence layer.
func (b *Builder) WithAccountStore(s store.AccountStore) *Builder {
	b.store = s
	return b
}

// WithNotifier sets the admin notification target. When notifications are
// enabled and no target is set, events are written to the engine logger.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit sink. It is used only when Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards output.
func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for lockout, login stamps and token times.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}

	log := b.logger
	if log == nil {
		log = logging.Discard()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		MaxAge:        cfg.Session.MaxAge,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		KeyID:         cfg.Session.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		jwtManager: jm,
		metrics:    NewMetrics(cfg.Metrics),
		log:        log,
		now:        now,
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		KeyPrefix:   cfg.RateLimit.KeyPrefix,
	})
	engine.tracker = lockout.New(b.store, lockout.Config{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	}, now)
	engine.verifier = credential.New(b.store, engine.tracker, hasher, credential.Config{
		TrimWhitespace: cfg.Password.TrimWhitespace,
		UpgradeOnLogin: cfg.Password.UpgradeOnLogin,
	}, log)

	if cfg.Audit.Enabled {
		engine.audit = audit.NewDispatcher(audit.Config{
			Enabled:     true,
			BufferSize:  cfg.Audit.BufferSize,
			DropIfFull:  cfg.Audit.DropIfFull,
			SinkTimeout: cfg.Audit.SinkTimeout,
		}, b.auditSink)
	}

	if cfg.Notify.Enabled {
		target := b.notifier
		if target == nil {
			target = notify.NewLog(log)
		}
		engine.notifier = notify.NewDispatcher(notify.Config{
			BufferSize:    cfg.Notify.BufferSize,
			Timeout:       cfg.Notify.Timeout,
			RatePerSecond: cfg.Notify.RatePerSecond,
			Burst:         cfg.Notify.Burst,
		}, target, log)
	}

	var provisioned notify.Notifier = notify.Nop{}
	if engine.notifier != nil {
		provisioned = engine.notifier
	}
	engine.reconciler = reconcile.New(b.store, provisioned, reconcile.Config{
		OpenRegistration:      cfg.Registration.OpenRegistration,
		DefaultLocale:         cfg.Session.DefaultLocale,
		DefaultOrganizationID: cfg.Session.DefaultOrganizationID,
	}, now, log)

	b.built = true

	return engine, nil
}
