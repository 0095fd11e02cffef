package classifier

import (
	"strings"
	"testing"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHeuristicDetector(t *testing.T) {
	detector := NewHeuristicDetector(whitelist.NewChecker([]string{"mailchimp.example"}, zap.NewNop()))

	cases := []struct {
		name string
		msg  core.RawMessage
		want bool
	}{
		{"personal", core.RawMessage{From: "Ana <ana@startup.example>", Body: "Can we meet Tuesday?"}, false},
		{"list header", core.RawMessage{From: "ana@startup.example", Headers: map[string]string{"list-unsubscribe": "<mailto:x@y>"}}, true},
		{"precedence bulk", core.RawMessage{From: "ana@startup.example", Headers: map[string]string{"Precedence": "Bulk"}}, true},
		{"auto submitted no", core.RawMessage{From: "ana@startup.example", Headers: map[string]string{"Auto-Submitted": "no"}}, false},
		{"auto replied", core.RawMessage{From: "ana@startup.example", Headers: map[string]string{"Auto-Submitted": "auto-replied"}}, true},
		{"noreply sender", core.RawMessage{From: "Shop <noreply@shop.example>"}, true},
		{"noreply prefix", core.RawMessage{From: "noreply-billing@shop.example"}, true},
		{"newsletter sender", core.RawMessage{From: "newsletter@vc.example"}, true},
		{"bulk domain", core.RawMessage{From: "team@news.mailchimp.example"}, true},
		{"footer", core.RawMessage{From: "ana@startup.example", Body: "News...\nClick here to Unsubscribe"}, true},
		{"footer beyond capped body", core.RawMessage{From: "ana@startup.example", Body: "Market notes", BodyTail: "...\nManage your subscription"}, true},
		{"early opt out mention", core.RawMessage{From: "ana@startup.example", Body: "unsubscribe " + strings.Repeat("x", 2*footerWindow)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.msg
			assert.Equal(t, tc.want, detector.IsBroadcast(&msg))
		})
	}
}

func TestAnyOfSkipsNil(t *testing.T) {
	d := AnyOf(nil, never)
	assert.False(t, d.IsBroadcast(&core.RawMessage{}))
	assert.True(t, AnyOf(never, always).IsBroadcast(&core.RawMessage{}))
}
