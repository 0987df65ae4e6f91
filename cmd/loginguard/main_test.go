package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrEthical07/loginguard/internal/config"
	"github.com/MrEthical07/loginguard/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func TestPrintHashVerifies(t *testing.T) {
	cfg := testConfig()
	var out bytes.Buffer
	require.NoError(t, printHash(cfg, strings.NewReader("  hunter2-correct  \n"), &out))

	encoded := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	h, err := password.NewHasher(password.Config{
		Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	ok, err := h.Verify("hunter2-correct", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrintHashRejectsEmpty(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, printHash(testConfig(), strings.NewReader("   \n"), &out))
	assert.Empty(t, out.String())
}

func TestAuditWriterDefaultsToStdout(t *testing.T) {
	w, closeFn, err := auditWriter("")
	require.NoError(t, err)
	defer closeFn()
	assert.NotNil(t, w)
}
