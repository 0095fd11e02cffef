package classifier

import (
	"strings"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/whitelist"
)

// BroadcastDetector decides whether a message was sent to a mass audience
type BroadcastDetector interface {
	IsBroadcast(msg *core.RawMessage) bool
}

// DetectorFunc adapts a function to BroadcastDetector
type DetectorFunc func(msg *core.RawMessage) bool

// IsBroadcast calls f
func (f DetectorFunc) IsBroadcast(msg *core.RawMessage) bool {
	return f(msg)
}

// AnyOf reports a broadcast when any of the detectors does
func AnyOf(detectors ...BroadcastDetector) BroadcastDetector {
	return DetectorFunc(func(msg *core.RawMessage) bool {
		for _, d := range detectors {
			if d != nil && d.IsBroadcast(msg) {
				return true
			}
		}
		return false
	})
}

var bulkLocalParts = map[string]struct{}{
	"noreply":       {},
	"no-reply":      {},
	"donotreply":    {},
	"do-not-reply":  {},
	"newsletter":    {},
	"newsletters":   {},
	"news":          {},
	"digest":        {},
	"notifications": {},
	"notification":  {},
	"updates":       {},
	"marketing":     {},
	"mailer-daemon": {},
}

var footerMarkers = []string{
	"unsubscribe",
	"opt out",
	"opt-out",
	"email preferences",
	"manage your subscription",
}

// footerWindow is how much of the body tail is searched for footers
const footerWindow = 800

// ListHeaders flags mailing-list and bulk mail headers
func ListHeaders(msg *core.RawMessage) bool {
	if msg.Header("List-Unsubscribe") != "" || msg.Header("List-Id") != "" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(msg.Header("Precedence"))) {
	case "bulk", "list", "junk":
		return true
	}
	auto := strings.ToLower(strings.TrimSpace(msg.Header("Auto-Submitted")))
	return auto != "" && auto != "no"
}

// BulkSender flags automated sender mailboxes such as noreply@ or newsletter@
func BulkSender(msg *core.RawMessage) bool {
	addr := whitelist.ExtractAddress(msg.From)
	if addr == nil {
		return false
	}
	local := strings.ToLower(addr.LocalPart)
	if _, ok := bulkLocalParts[local]; ok {
		return true
	}
	return strings.HasPrefix(local, "noreply") || strings.HasPrefix(local, "no-reply")
}

// UnsubscribeFooter flags bodies ending in an opt-out footer.
// The uncapped tail is preferred over the body, which may have been cut.
func UnsubscribeFooter(msg *core.RawMessage) bool {
	tail := msg.BodyTail
	if tail == "" {
		tail = msg.Body
	}
	if len(tail) > footerWindow {
		tail = tail[len(tail)-footerWindow:]
	}
	tail = strings.ToLower(tail)
	for _, marker := range footerMarkers {
		if strings.Contains(tail, marker) {
			return true
		}
	}
	return false
}

// NewHeuristicDetector combines the built-in heuristics with a list of
// known bulk sender domains
func NewHeuristicDetector(bulkDomains *whitelist.Checker) BroadcastDetector {
	detectors := []BroadcastDetector{
		DetectorFunc(ListHeaders),
		DetectorFunc(BulkSender),
		DetectorFunc(UnsubscribeFooter),
	}
	if bulkDomains != nil && !bulkDomains.Empty() {
		detectors = append(detectors, DetectorFunc(func(msg *core.RawMessage) bool {
			return bulkDomains.Matches(msg.From)
		}))
	}
	return AnyOf(detectors...)
}
