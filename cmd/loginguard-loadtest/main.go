// Command loginguard-loadtest drives concurrent logins through an engine
// backed by SQLite and Redis (miniredis unless -redis-addr is set) and
// reports latency percentiles per phase.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/loginguard"
	"github.com/MrEthical07/loginguard/password"
	"github.com/MrEthical07/loginguard/store"
	"github.com/MrEthical07/loginguard/store/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadSecret = "load-test-secret"

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 32, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "operations per phase")
		memory      = flag.Uint("argon-memory", 8192, "argon2id memory in KiB")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	db, err := sqlstore.Open(ctx, sqlstore.SQLite, ":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sqlite: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := sqlstore.Migrate(ctx, sqlstore.SQLite, db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	accountStore := sqlstore.New(db)

	cfg := loginguard.DefaultConfig()
	cfg.Session.PrivateKey = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.Password.Memory = uint32(*memory)
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	// origins repeat across phases; keep the budget out of the way
	cfg.RateLimit.MaxAttempts = *ops * 4
	cfg.Notify.Enabled = false

	engine, err := loginguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(accountStore).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher: %v\n", err)
		os.Exit(1)
	}
	hash, err := hasher.Hash(loadSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}

	emails, err := seedAccounts(ctx, accountStore, hash, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		email := emails[r.Intn(len(emails))]
		_, err := engine.Login(ctx, loginguard.LoginRequest{
			Email:    email,
			Password: loadSecret,
			Origin:   fmt.Sprintf("10.0.%d.%d", (i/250)%250, i%250),
		})
		return err
	})

	federatedStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		// a small pool of new emails so provisioning races are exercised
		email := fmt.Sprintf("federated-%d@example.com", r.Intn(*accounts))
		_, err := engine.LoginFederated(ctx, loginguard.FederatedIdentity{
			Email:    email,
			Provider: "loadtest",
		})
		return err
	})

	lockStats, locked := runLockStorm(ctx, engine, accountStore, hash, *concurrency, cfg.Lockout.Threshold)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("federated", federatedStats)
	printStats("lock-storm", lockStats)
	fmt.Printf("lock-storm: account locked=%t lock transitions=%d\n",
		locked, engine.MetricsSnapshot().Counters[loginguard.MetricAccountLocked])
}

func seedAccounts(ctx context.Context, s store.AccountStore, hash string, n int) ([]string, error) {
	fmt.Printf("seeding %d accounts...\n", n)
	start := time.Now()
	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("user-%d@example.com", i)
		if _, err := s.Create(ctx, store.NewAccount{
			Email:        emails[i],
			DisplayName:  fmt.Sprintf("User %d", i),
			PasswordHash: hash,
			Status:       store.StatusActive,
		}, time.Now()); err != nil {
			return nil, err
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return emails, nil
}

// runLockStorm sends concurrent wrong secrets at one account, well past the
// threshold, and reports whether the account ended up locked.
func runLockStorm(ctx context.Context, engine *loginguard.Engine, s store.AccountStore, hash string, concurrency, threshold int) (phaseStats, bool) {
	const email = "lock-target@example.com"
	if _, err := s.Create(ctx, store.NewAccount{
		Email:        email,
		PasswordHash: hash,
		Status:       store.StatusActive,
	}, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "seed lock target: %v\n", err)
		return phaseStats{}, false
	}

	var unexpected int64
	stats := runPhase(threshold*4, concurrency, func(_ *rand.Rand, i int) error {
		_, err := engine.Login(ctx, loginguard.LoginRequest{
			Email:    email,
			Password: "wrong",
			Origin:   fmt.Sprintf("192.0.2.%d", i%250),
		})
		if !errors.Is(err, loginguard.ErrAuthenticationFailed) {
			atomic.AddInt64(&unexpected, 1)
		}
		return nil
	})
	stats.failures = unexpected

	a, err := s.GetByEmail(ctx, email)
	if err != nil {
		return stats, false
	}
	return stats, a.LockoutUntil != nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
