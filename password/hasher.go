package password

import (
	"crypto/rand"
	"encoding/hex"
)

// Hasher is the credential comparison used by the login path. New hashes are
// argon2id; stored hashes may be argon2id or legacy bcrypt.
type Hasher struct {
	argon *Argon2
	dummy string
}

// NewHasher builds a Hasher and precomputes the hash used by [Hasher.DummyVerify].
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := a.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a, dummy: dummy}, nil
}

// Hash returns an argon2id PHC string for secret.
func (h *Hasher) Hash(secret string) (string, error) {
	return h.argon.Hash(secret)
}

// Verify compares secret against encoded in constant time. A malformed or
// unknown hash returns ErrMalformedHash.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return verifyBcrypt(secret, encoded)
	}
	return h.argon.Verify(secret, encoded)
}

// NeedsUpgrade reports whether encoded should be replaced on the next
// successful login.
func (h *Hasher) NeedsUpgrade(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encoded)
	return err == nil && upgrade
}

// DummyVerify spends the same work as a real comparison and discards the
// result. Denial paths that skip the real comparison call it so response time
// does not reveal whether an account exists or is locked.
func (h *Hasher) DummyVerify(secret string) {
	_, _ = h.argon.Verify(secret, h.dummy)
}
