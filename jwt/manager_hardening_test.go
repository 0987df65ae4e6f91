package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

var hmacKey = []byte("0123456789abcdef0123456789abcdef")

func sampleClaims() SessionClaims {
	c := SessionClaims{
		Name:           "Ada Lovelace",
		Email:          "ada@example.com",
		Admin:          true,
		Locale:         "en",
		Status:         "ACTIVE",
		LastLogin:      1767225600,
		OrganizationID: "org-7",
	}
	c.Subject = "acct-1"
	return c
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	m, err := NewManager(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    hmacKey,
		Issuer:        "loginguard",
		Audience:      "console",
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, issued, err := m.Issue(sampleClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !issued.ExpiresAtTime().Equal(now.Add(DefaultMaxAge)) {
		t.Fatalf("expected exp = iat + 30m, got %v", issued.ExpiresAtTime())
	}
	if issued.ID == "" {
		t.Fatal("expected jti")
	}

	got, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.AccountID() != "acct-1" || got.Email != "ada@example.com" || !got.Admin ||
		got.Locale != "en" || got.Status != "ACTIVE" || got.OrganizationID != "org-7" {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if ll := got.LastLoginAt(); ll == nil || ll.Unix() != 1767225600 {
		t.Fatalf("unexpected last login: %v", ll)
	}
	if got.Issuer != "loginguard" || len(got.Audience) != 1 || got.Audience[0] != "console" {
		t.Fatalf("unexpected registered claims: %+v", got.RegisteredClaims)
	}
}

func TestIssueOverridesCallerRegisteredClaims(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey, MaxAge: time.Minute})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	c := sampleClaims()
	c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(100 * 24 * time.Hour))

	_, issued, err := m.Issue(c)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.ExpiresAtTime().After(time.Now().Add(2 * time.Minute)) {
		t.Fatal("caller-supplied expiry must not extend the session")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	m, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey})
	if _, _, err := m.Issue(SessionClaims{Email: "x@example.com"}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestParseExpiredSession(t *testing.T) {
	now := time.Now()
	m, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey, Now: func() time.Time { return now }})
	token, _, err := m.Issue(sampleClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey, Now: func() time.Time { return now.Add(31 * time.Minute) }})
	if _, err := later.Parse(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	c := sampleClaims()
	c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(time.Minute))
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, c)
	token, err := tok.SignedString(hmacKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "loginguard",
		Audience:      "console",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.Issue(sampleClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(iss, aud string, iat, exp time.Time) string {
		c := sampleClaims()
		c.RegisteredClaims = gjwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			IssuedAt:  gjwt.NewNumericDate(iat),
			ExpiresAt: gjwt.NewNumericDate(exp),
		}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	now := time.Now()

	if _, err := m.Parse(sign("other", "console", now, now.Add(time.Minute))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(sign("loginguard", "other-app", now, now.Add(time.Minute))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(sign("loginguard", "console", now.Add(-time.Minute), now.Add(-15*time.Second))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(sign("loginguard", "console", now.Add(-3*time.Minute), now.Add(-2*time.Minute))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRejectsMissingExpiry(t *testing.T) {
	m, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey})
	c := sampleClaims()
	c.IssuedAt = gjwt.NewNumericDate(time.Now())
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, c).SignedString(hmacKey)

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	c := sampleClaims()
	c.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(time.Minute))
	c.IssuedAt = gjwt.NewNumericDate(time.Now())
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, _, err := m.Issue(sampleClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k1": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := map[string]Config{
		"short hmac":      {SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"unknown method":  {SigningMethod: "rs256", PrivateKey: hmacKey},
		"negative maxage": {SigningMethod: MethodHS256, PrivateKey: hmacKey, MaxAge: -time.Second},
		"big leeway":      {SigningMethod: MethodHS256, PrivateKey: hmacKey, Leeway: time.Hour},
		"ed no pub":       {SigningMethod: MethodEd25519},
		"kid not in set":  {SigningMethod: MethodHS256, PrivateKey: hmacKey, KeyID: "x", VerifyKeys: map[string][]byte{"y": hmacKey}},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestTokenNeverCarriesSecrets(t *testing.T) {
	m, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey})
	token, _, err := m.Issue(sampleClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, part := range strings.Split(token, ".")[:2] {
		if strings.Contains(part, "argon2") || strings.Contains(part, string(hmacKey)) {
			t.Fatal("token leaked secret material")
		}
	}
}
