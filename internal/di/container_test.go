package di

import (
	"errors"
	"testing"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("store.type", "memory")
	cfg.Set("llm.provider", "openai")
	cfg.Set("openai.api_key", "sk-test")
	cfg.Set("logging.format", "console")
	return cfg
}

func TestBuildContainerWiresScanPipeline(t *testing.T) {
	container, err := BuildContainer(testConfig())
	require.NoError(t, err)

	err = container.Invoke(func(s core.Store, scanner *scan.Scanner, batch *scan.Batch, scheduler *scan.Scheduler, closers *Closers) {
		assert.NotNil(t, s)
		assert.NotNil(t, scanner)
		assert.NotNil(t, batch)
		assert.NotNil(t, scheduler)
		assert.NoError(t, closers.Close())
	})
	require.NoError(t, err)
}

func TestBuildContainerReportsConfigErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Set("scan.classify_concurrency", 0)

	container, err := BuildContainer(cfg)
	require.NoError(t, err)
	err = container.Invoke(func(*scan.Scanner) {})
	assert.ErrorContains(t, err, "classify_concurrency")
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func TestClosersCombineErrors(t *testing.T) {
	var order []int
	c := &Closers{}
	c.Add(closeFunc(func() error { order = append(order, 1); return errors.New("first") }))
	c.Add(closeFunc(func() error { order = append(order, 2); return nil }))
	c.Add(closeFunc(func() error { order = append(order, 3); return errors.New("third") }))

	err := c.Close()
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "third")
	assert.NoError(t, c.Close())
}
