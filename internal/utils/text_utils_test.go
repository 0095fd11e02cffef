package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTruncateTextKeepsRuneBoundary(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	out, cut := tp.TruncateText("héllo wörld", 2)
	assert.True(t, cut)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "h", out)

	out, cut = tp.TruncateText("short", 100)
	assert.False(t, cut)
	assert.Equal(t, "short", out)

	out, cut = tp.TruncateText("unbounded", 0)
	assert.False(t, cut)
	assert.Equal(t, "unbounded", out)
}

func TestTailTextStartsOnRuneBoundary(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "rld", tp.TailText("wörld", 4))
	assert.Equal(t, "short", tp.TailText("short", 100))
	assert.Equal(t, "all", tp.TailText("all", 0))
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
	// decomposed e + combining acute becomes the composed form
	assert.Equal(t, "\u00e9", tp.SanitizeUTF8("e\u0301"))
}

func TestForPromptMarksTruncation(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	out := tp.ForPrompt(strings.Repeat("x", 50), 10)
	assert.True(t, strings.HasSuffix(out, TruncationMarker))
	assert.Equal(t, "abc", tp.ForPrompt("abc", 10))
}

func TestPreview(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "a b c", tp.Preview("a\n\n b\t c", 100))
	assert.Equal(t, "ñañ", tp.Preview("ñañañ", 3))
}

func TestHTMLToText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	html := `<html><head><title>t</title><style>p{}</style></head>
<body><p>Hello <b>there</b></p><script>alert(1)</script><div>Second line</div></body></html>`

	text := tp.HTMLToText(html)
	assert.Contains(t, text, "Hello there")
	assert.Contains(t, text, "Second line")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "p{}")
}
