package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/loginguard/internal/lockout"
	"github.com/MrEthical07/loginguard/password"
	"github.com/MrEthical07/loginguard/store"
	"github.com/MrEthical07/loginguard/store/sqlstore/sqlstoretest"
	"golang.org/x/crypto/bcrypt"
)

type countingHasher struct {
	*password.Hasher
	mu       sync.Mutex
	verifies int
	dummies  int
}

func (h *countingHasher) Verify(secret, encoded string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Hasher.Verify(secret, encoded)
}

func (h *countingHasher) DummyVerify(secret string) {
	h.mu.Lock()
	h.dummies++
	h.mu.Unlock()
	h.Hasher.DummyVerify(secret)
}

type fixture struct {
	store    store.AccountStore
	hasher   *countingHasher
	tracker  *lockout.Tracker
	verifier *Verifier
	now      time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ph, err := password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	f := &fixture{
		store:  sqlstoretest.New(t),
		hasher: &countingHasher{Hasher: ph},
		now:    time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	f.tracker = lockout.New(f.store, lockout.Config{}, func() time.Time { return f.now })
	f.verifier = New(f.store, f.tracker, f.hasher, cfg, nil)
	return f
}

func (f *fixture) seed(t *testing.T, email, secret string) *store.Account {
	t.Helper()
	hash := ""
	if secret != "" {
		var err error
		if hash, err = f.hasher.Hash(secret); err != nil {
			t.Fatalf("Hash: %v", err)
		}
	}
	return sqlstoretest.Seed(t, f.store, email, hash)
}

func (f *fixture) reload(t *testing.T, email string) *store.Account {
	t.Helper()
	a, err := f.store.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	return a
}

func TestVerifySuccessResetsCounters(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "ok@example.com", "correct horse")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.verifier.Verify(ctx, "ok@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if got := f.reload(t, "ok@example.com").FailedLoginAttempts; got != 3 {
		t.Fatalf("expected 3 failures, got %d", got)
	}

	out, err := f.verifier.Verify(ctx, "OK@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Account == nil || out.Reason != "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	a := f.reload(t, "ok@example.com")
	if a.FailedLoginAttempts != 0 || a.LockoutUntil != nil {
		t.Fatalf("expected reset counters, got %d %v", a.FailedLoginAttempts, a.LockoutUntil)
	}
}

func TestVerifyNotFoundSpendsDummyComparison(t *testing.T) {
	f := newFixture(t, Config{})

	out, err := f.verifier.Verify(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if out.Account != nil || out.Reason != ReasonNotFound {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.hasher.dummies != 1 || f.hasher.verifies != 0 {
		t.Fatalf("expected one dummy comparison, got dummies=%d verifies=%d", f.hasher.dummies, f.hasher.verifies)
	}
}

func TestVerifyFifthFailureLocks(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "a@example.com", "right")
	ctx := context.Background()

	for i := 0; i < lockout.DefaultThreshold-1; i++ {
		_, _ = f.verifier.Verify(ctx, "a@example.com", "wrong")
	}

	out, err := f.verifier.Verify(ctx, "a@example.com", "wrong")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked on the threshold failure, got %v", err)
	}
	if !out.LockTriggered || out.Attempts != lockout.DefaultThreshold {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	want := f.now.Add(lockout.DefaultDuration)
	if out.LockoutUntil == nil || !out.LockoutUntil.Equal(want) {
		t.Fatalf("lockout until %v, want %v", out.LockoutUntil, want)
	}
}

func TestVerifyLockedSkipsRealComparison(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "b@example.com", "right")
	ctx := context.Background()

	for i := 0; i < lockout.DefaultThreshold; i++ {
		_, _ = f.verifier.Verify(ctx, "b@example.com", "wrong")
	}
	verifiesBefore := f.hasher.verifies

	out, err := f.verifier.Verify(ctx, "b@example.com", "right")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if out.LockTriggered || out.Reason != ReasonLocked {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.hasher.verifies != verifiesBefore {
		t.Fatal("locked account must not be compared against its hash")
	}
	if f.hasher.dummies != 1 {
		t.Fatalf("expected one dummy comparison, got %d", f.hasher.dummies)
	}
	if got := f.reload(t, "b@example.com").FailedLoginAttempts; got != lockout.DefaultThreshold {
		t.Fatalf("locked attempts must not be counted, got %d", got)
	}
}

func TestVerifyAfterLockoutElapsed(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "c@example.com", "right")
	ctx := context.Background()

	for i := 0; i < lockout.DefaultThreshold; i++ {
		_, _ = f.verifier.Verify(ctx, "c@example.com", "wrong")
	}
	f.now = f.now.Add(lockout.DefaultDuration + time.Second)

	if _, err := f.verifier.Verify(ctx, "c@example.com", "right"); err != nil {
		t.Fatalf("expected success after lockout elapsed, got %v", err)
	}
	a := f.reload(t, "c@example.com")
	if a.FailedLoginAttempts != 0 || a.LockoutUntil != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", a.FailedLoginAttempts, a.LockoutUntil)
	}
}

func TestVerifyAccountWithoutPassword(t *testing.T) {
	f := newFixture(t, Config{})
	f.seed(t, "fed@example.com", "")

	_, err := f.verifier.Verify(context.Background(), "fed@example.com", "anything")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if f.hasher.dummies != 1 {
		t.Fatalf("expected dummy comparison, got %d", f.hasher.dummies)
	}
	if got := f.reload(t, "fed@example.com").FailedLoginAttempts; got != 0 {
		t.Fatalf("federated-only account must not accrue failures, got %d", got)
	}
}

func TestVerifyTrimWhitespace(t *testing.T) {
	f := newFixture(t, Config{TrimWhitespace: true})
	f.seed(t, "t@example.com", "secret")

	if _, err := f.verifier.Verify(context.Background(), "t@example.com", "  secret\n"); err != nil {
		t.Fatalf("expected trimmed secret to match, got %v", err)
	}

	strict := newFixture(t, Config{})
	strict.seed(t, "t@example.com", "secret")
	if _, err := strict.verifier.Verify(context.Background(), "t@example.com", " secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected untrimmed secret to fail, got %v", err)
	}
}

func TestVerifyUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t, Config{UpgradeOnLogin: true})
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	sqlstoretest.Seed(t, f.store, "legacy@example.com", string(legacy))

	out, err := f.verifier.Verify(context.Background(), "legacy@example.com", "old-secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.Upgraded {
		t.Fatal("expected hash upgrade")
	}
	a := f.reload(t, "legacy@example.com")
	if a.PasswordHash == string(legacy) || f.hasher.NeedsUpgrade(a.PasswordHash) {
		t.Fatalf("expected stored hash to be current argon2id, got %q", a.PasswordHash[:10])
	}
	if _, err := f.verifier.Verify(context.Background(), "legacy@example.com", "old-secret"); err != nil {
		t.Fatalf("upgraded hash must verify: %v", err)
	}
}

func TestVerifyMalformedHashCountsAsFailure(t *testing.T) {
	f := newFixture(t, Config{})
	sqlstoretest.Seed(t, f.store, "bad@example.com", "$argon2id$garbage")

	_, err := f.verifier.Verify(context.Background(), "bad@example.com", "x")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := f.reload(t, "bad@example.com").FailedLoginAttempts; got != 1 {
		t.Fatalf("expected failure recorded, got %d", got)
	}
}

type brokenAccounts struct{}

func (brokenAccounts) GetByEmail(context.Context, string) (*store.Account, error) {
	return nil, errors.New("connection refused")
}

func (brokenAccounts) UpdatePasswordHash(context.Context, string, string) error { return nil }

func TestVerifyStoreUnavailable(t *testing.T) {
	f := newFixture(t, Config{})
	v := New(brokenAccounts{}, f.tracker, f.hasher, Config{}, nil)

	_, err := v.Verify(context.Background(), "x@example.com", "secret")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("dependency failure must not look like a security decision")
	}
}
