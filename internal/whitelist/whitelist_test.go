package whitelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerMatchesDomainsAndSubdomains(t *testing.T) {
	c := NewChecker([]string{" Mailchimp.com ", ".substack.com"}, nil)

	assert.True(t, c.Matches("news@mailchimp.com"))
	assert.True(t, c.Matches("Weekly <digest@us5.mailchimp.com>"))
	assert.True(t, c.Matches("writer@substack.com"))
	assert.False(t, c.Matches("founder@notmailchimp.com"))
	assert.False(t, c.Matches("not an address"))
}

func TestCheckerMatchesExactAddresses(t *testing.T) {
	c := NewChecker([]string{"Boss@Example.com"}, nil)

	assert.True(t, c.Matches("The Boss <boss@example.com>"))
	assert.False(t, c.Matches("other@example.com"))
}

func TestEmptyChecker(t *testing.T) {
	c := NewChecker(nil, nil)
	assert.True(t, c.Empty())
	assert.False(t, c.Matches("a@b.com"))
}

func TestExtractAddress(t *testing.T) {
	addr := ExtractAddress(`"Jane Doe" <jane@fund.vc>`)
	require.NotNil(t, addr)
	assert.Equal(t, "jane", addr.LocalPart)
	assert.Equal(t, "fund.vc", addr.Domain)

	assert.Nil(t, ExtractAddress("nobody"))
}
