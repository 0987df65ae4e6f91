// Command loginguard serves the login engine over HTTP.
//
//	loginguard -config loginguard.toml
//	loginguard -dev                      # embedded Redis, SQLite file store
//	loginguard -hash-password < secret   # print an argon2id hash for seeding
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/loginguard"
	"github.com/MrEthical07/loginguard/internal/config"
	"github.com/MrEthical07/loginguard/internal/httpapi"
	"github.com/MrEthical07/loginguard/internal/logging"
	"github.com/MrEthical07/loginguard/metrics/export/prometheus"
	"github.com/MrEthical07/loginguard/notify"
	"github.com/MrEthical07/loginguard/password"
	"github.com/MrEthical07/loginguard/store/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		configPath   = flag.String("config", os.Getenv("LOGINGUARD_CONFIG"), "path to a TOML config file")
		dev          = flag.Bool("dev", false, "run with embedded redis")
		hashPassword = flag.Bool("hash-password", false, "read a secret from stdin and print its hash")
	)
	flag.Parse()

	if *dev {
		_ = os.Setenv("LOGINGUARD_DEV", "true")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	if *hashPassword {
		if err := printHash(cfg, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "hash-password: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "loginguard exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	db, dialect, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	closers = append(closers, func() { _ = db.Close() })

	rdb, closeRedis, err := openRedis(cfg.Redis, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeRedis)

	b := loginguard.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(sqlstore.New(db)).
		WithLogger(log)

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("loginguard"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		closers = append(closers, func() { _ = nc.Drain() })
		b.WithNotifier(notify.NewNATS(nc, cfg.NATS.Subject))
	}

	if cfg.Audit.Enabled {
		w, closeAudit, err := auditWriter(cfg.Audit.File)
		if err != nil {
			return err
		}
		closers = append(closers, closeAudit)
		b.WithAuditSink(loginguard.NewJSONWriterSink(w))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	// runs before the closers above so queued events reach NATS and the audit file
	closers = append(closers, engine.Close)

	api := httpapi.New(engine, httpapi.Options{
		FederationToken: cfg.Federation.Token,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Metrics:         prometheus.New(engine).Handler(),
		Logger:          log,
		Health: map[string]httpapi.HealthCheck{
			"database": db.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	if every := cfg.Maintenance.LockoutSweepInterval; every > 0 {
		go sweepLockouts(ctx, engine, every, log)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "loginguard listening", "addr", srv.Addr, "database", string(dialect), "production", cfg.Production)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlstore.Open(openCtx, dialect, cfg.DSN)
	if err != nil {
		return nil, "", err
	}
	if cfg.Migrate {
		if err := sqlstore.Migrate(openCtx, dialect, db); err != nil {
			_ = db.Close()
			return nil, "", err
		}
	}
	return db, dialect, nil
}

func openRedis(cfg config.RedisConfig, log logging.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		log.Warn(context.Background(), "using embedded redis; rate-limit state is not shared or persisted", "addr", mr.Addr())
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(cfg.Addr, ","),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return client, func() { _ = client.Close() }, nil
}

func auditWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func sweepLockouts(ctx context.Context, engine *loginguard.Engine, every time.Duration, log logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.SweepExpiredLockouts(ctx); err != nil && ctx.Err() == nil {
				log.Warn(ctx, "lockout sweep failed", "error", err)
			}
		}
	}
}

func printHash(cfg *config.Config, in io.Reader, out io.Writer) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}
	h, err := password.NewHasher(password.Config{
		Memory:           engineCfg.Password.Memory,
		Time:             engineCfg.Password.Time,
		Parallelism:      engineCfg.Password.Parallelism,
		SaltLength:       engineCfg.Password.SaltLength,
		KeyLength:        engineCfg.Password.KeyLength,
		MaxPasswordBytes: engineCfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return err
	}

	secret, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	secret = strings.TrimRight(secret, "\r\n")
	if engineCfg.Password.TrimWhitespace {
		secret = strings.TrimSpace(secret)
	}
	if secret == "" {
		return errors.New("empty secret")
	}

	encoded, err := h.Hash(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, encoded)
	return err
}
