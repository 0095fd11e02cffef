package scan

import (
	"testing"

	"github.com/mikey/inbox-triage/internal/adapters/store"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSchedulerValidatesSpec(t *testing.T) {
	b := NewBatch(&fakeRunner{}, store.NewMemoryStore(zap.NewNop()), config.BatchConfig{}, zap.NewNop())

	_, err := NewScheduler(b, "not a schedule", zap.NewNop())
	assert.Error(t, err)

	s, err := NewScheduler(b, "0 8 * * *", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestPresets(t *testing.T) {
	d, err := PresetDuration("3days", false)
	require.NoError(t, err)
	assert.Equal(t, "72h0m0s", d.String())

	_, err = PresetDuration("2hours", false)
	assert.ErrorIs(t, err, ErrUnknownPreset)
	_, err = PresetDuration("2hours", true)
	assert.NoError(t, err)

	assert.Equal(t, []string{"1day", "3days", "7days"}, PresetNames(false))
	assert.Equal(t, []string{"2hours", "1day", "3days", "7days", "30days"}, PresetNames(true))
}
