package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	assert.Equal(t, "gemini", cfg.GetLLM().Provider)
	assert.Equal(t, "sqlite", cfg.GetStore().Type)

	scan, err := cfg.GetScan()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, scan.DefaultLookback)
	assert.Equal(t, 5, scan.ClassifyConcurrency)
	assert.Equal(t, time.Minute, scan.RefreshMargin)

	batch, err := cfg.GetBatch()
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * *", batch.Schedule)
	assert.Equal(t, 50, batch.Limit)

	fetcher, err := cfg.GetFetcher()
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.MaxAttempts)
	assert.Equal(t, 1024, fetcher.TailBytes)
}

func TestInvalidDuration(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("scan.default_lookback", "two days")

	_, err := cfg.GetScan()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan.default_lookback")
}

func TestNonPositiveConcurrencyRejected(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("scan.classify_concurrency", 0)

	_, err := cfg.GetScan()
	require.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
llm:
  provider: openai
quota:
  admin_emails:
    - boss@example.com
store:
  type: memory
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.GetLLM().Provider)
	assert.Equal(t, "memory", cfg.GetStore().Type)
	scan, err := cfg.GetScan()
	require.NoError(t, err)
	assert.Equal(t, []string{"boss@example.com"}, scan.AdminEmails)
	// untouched keys keep their defaults
	assert.Equal(t, "in:inbox", cfg.GetGmail().Query)
}
