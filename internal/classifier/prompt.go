package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
)

const promptFormat = `You triage e-mail for %s.
%s
Their focus keywords: %s
Their context: %s

Sort the e-mail into exactly one lane:
- "opportunity": a new lead that matches their focus (%s)
- "operation": day-to-day or administrative mail (customers, vendors, team, finance, tools, newsletters)
%s
Then score it:
- thesis_match_score: integer 0-100, required when lane is "opportunity", measuring how specifically the e-mail matches the focus keywords. 0 is allowed.
- priority: always one of "critical", "important", "useful", "low", based on deadlines, explicit asks and sender relationship.
- category: one short uppercase label, for example OPPORTUNITY, CRITICAL, HIGH, STANDARD, LOW.
- summary: one or two sentences on what the sender wants.

E-mail:
From: %s
Subject: %s
Date: %s
Body:
%s

Respond only with a JSON object with the keys lane, thesis_match_score, priority, category and summary.`

func roleDescription(role core.Role) (who, focus, lead string) {
	switch role {
	case core.RoleInvestor:
		return "an investor",
			"They look for investable companies: founder pitches, decks, intros to startups raising money.",
			"deal flow that fits the investment thesis"
	case core.RoleOperator:
		return "a company operator",
			"They look for business opportunities: customers, partners, hires and fundraising conversations.",
			"business opportunities relevant to their company"
	default:
		return "a professional",
			"They look for messages that advance their goals.",
			"opportunities relevant to their goals"
	}
}

// BuildPrompt renders the single classification request for one message
func BuildPrompt(msg *core.RawMessage, profile *core.UserProfile, body string, broadcast bool) string {
	who, focus, lead := roleDescription(profile.Role)

	hint := ""
	if broadcast {
		hint = "This e-mail was sent to a mass audience (mailing list, newsletter or marketing). It must be sorted as \"operation\".\n"
	}

	context := strings.TrimSpace(profile.Context)
	if context == "" {
		context = "(none given)"
	}
	date := "(unknown)"
	if !msg.Date.IsZero() {
		date = msg.Date.Format(time.RFC1123Z)
	}

	return fmt.Sprintf(promptFormat,
		who, focus,
		strings.Join(profile.Keywords, ", "),
		context,
		lead,
		hint,
		msg.From, msg.Subject, date, body)
}
