package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// TruncationMarker is appended to text cut by TruncateText
const TruncationMarker = "\n[... content truncated ...]"

// TextProcessor provides utilities for processing message text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText cuts text to at most maxSize bytes on a rune boundary.
// The second return value reports whether anything was cut.
func (tp *TextProcessor) TruncateText(text string, maxSize int) (string, bool) {
	if maxSize <= 0 || len(text) <= maxSize {
		return text, false
	}

	truncated := text[:maxSize]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated, true
}

// TailText returns at most maxSize bytes from the end of text, starting on a
// rune boundary
func (tp *TextProcessor) TailText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}
	tail := text[len(text)-maxSize:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return tail
}

// SanitizeUTF8 drops invalid byte sequences and applies NFC normalisation
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return norm.NFC.String(text)
}

// ForPrompt caps text for inclusion in a model prompt, marking the cut
func (tp *TextProcessor) ForPrompt(text string, maxSize int) string {
	out, cut := tp.TruncateText(text, maxSize)
	if cut {
		return out + TruncationMarker
	}
	return out
}

// Preview returns at most maxChars runes of text with whitespace collapsed
func (tp *TextProcessor) Preview(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

// HTMLToText extracts the visible text of an HTML document
func (tp *TextProcessor) HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		tp.logger.Debug("Failed to parse HTML body", zap.Error(err))
		return html
	}
	doc.Find("script, style, head").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
