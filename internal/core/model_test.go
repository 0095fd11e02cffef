package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" Fintech ", "fintech", "", "Straße", "STRASSE", "ΣΊΣΥΦΟΣ", "σίσυφος"})
	assert.Equal(t, []string{"Fintech", "Straße", "ΣΊΣΥΦΟΣ"}, got)
}

func TestCredentialValidFor(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	cred := &Credential{AccessToken: "a", Expiry: now.Add(2 * time.Minute)}

	assert.True(t, cred.ValidFor(now, time.Minute))
	assert.False(t, cred.ValidFor(now, 3*time.Minute))
	assert.False(t, (&Credential{Expiry: now.Add(time.Hour)}).ValidFor(now, time.Minute))
}
