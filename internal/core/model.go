package core

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Role describes what kind of mailbox owner a profile belongs to
type Role string

const (
	RoleInvestor Role = "investor"
	RoleOperator Role = "operator"
	RoleOther    Role = "other"
)

// ParseRole maps a free-form role string onto a known role
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "investor", "vc", "angel", "investor-like":
		return RoleInvestor
	case "operator", "founder", "operator-like":
		return RoleOperator
	default:
		return RoleOther
	}
}

// SubscriptionStatus is the billing state of a user
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// SubscriptionState is the entitlement snapshot consulted by the quota gate
type SubscriptionState struct {
	Status       SubscriptionStatus
	FreeScanUsed bool
	ExpiresAt    time.Time
}

// Entitled reports whether the subscription currently grants scans.
// A zero ExpiresAt means the subscription does not expire.
func (s SubscriptionState) Entitled(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionTrial:
		return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
	default:
		return false
	}
}

// UserProfile holds the preferences that personalise classification
type UserProfile struct {
	ID           string
	Email        string
	Role         Role
	Keywords     []string
	Context      string
	Subscription SubscriptionState
	CreatedAt    time.Time
}

// Validate checks the profile invariants
func (p *UserProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("profile id is required")
	}
	if len(p.Keywords) == 0 {
		return fmt.Errorf("profile %s has no keywords", p.ID)
	}
	return nil
}

// NormalizeKeywords trims keywords and drops empty and duplicate entries,
// keeping the first occurrence order. Duplicates are found by Unicode case folding.
func NormalizeKeywords(keywords []string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := fold.String(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Credential is a user's delegated access to their mailbox
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// ValidFor reports whether the access token stays valid for at least margin
func (c *Credential) ValidFor(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.Expiry.After(now.Add(margin))
}

// AccessToken is a bearer token handed to the mail provider
type AccessToken struct {
	Value  string
	Expiry time.Time
}

// WindowSource records how a scan window was chosen
type WindowSource string

const (
	WindowExplicit        WindowSource = "explicit"
	WindowSinceLastScan   WindowSource = "since-last-success"
	WindowDefaultLookback WindowSource = "default-lookback"
)

// ScanWindow is the half-open interval [Since, Until) of message dates to fetch
type ScanWindow struct {
	Since     time.Time
	Until     time.Time
	PageToken string
	Source    WindowSource
}

// Validate checks that the window bounds are ordered
func (w ScanWindow) Validate() error {
	if w.Since.IsZero() || w.Until.IsZero() {
		return fmt.Errorf("scan window bounds are required")
	}
	if !w.Since.Before(w.Until) {
		return fmt.Errorf("scan window since %s is not before until %s",
			w.Since.Format(time.RFC3339), w.Until.Format(time.RFC3339))
	}
	return nil
}

// RawMessage is a fetched message before classification
type RawMessage struct {
	ProviderID    string
	ThreadID      string
	From          string
	To            string
	Subject       string
	Date          time.Time
	Headers       map[string]string
	Body          string
	BodyTruncated bool
	// BodyTail is the end of the uncapped body, where bulk mail keeps its footer
	BodyTail      string
}

// Header returns a header value using a case-insensitive name lookup
func (m *RawMessage) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Lane is the processing track a message is assigned to
type Lane string

const (
	LaneOpportunity Lane = "opportunity"
	LaneOperation   Lane = "operation"
)

// Valid reports whether l is a known lane
func (l Lane) Valid() bool {
	return l == LaneOpportunity || l == LaneOperation
}

// Priority is the urgency of a message
type Priority string

const (
	PriorityCritical  Priority = "critical"
	PriorityImportant Priority = "important"
	PriorityUseful    Priority = "useful"
	PriorityLow       Priority = "low"
)

// Rank orders priorities from 4 (critical) to 1 (low); unknown values rank 0
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityImportant:
		return 3
	case PriorityUseful:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Classification is the verdict produced for one message
type Classification struct {
	Lane             Lane
	Category         string
	Priority         Priority
	ThesisMatchScore *int
	ImportanceScore  int
	Summary          string
	Broadcast        bool
	Model            string
}

// ClassifiedMessage is the persisted record of a classified message
type ClassifiedMessage struct {
	ID               string
	UserID           string
	ProviderMsgID    string
	Sender           string
	Subject          string
	Date             time.Time
	Lane             Lane
	Category         string
	Priority         Priority
	ImportanceScore  int
	ThesisMatchScore *int
	Summary          string
	Link             string
	Read             bool
	CreatedAt        time.Time
}

// UpsertOutcome tells whether an upsert created a new record
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	AlreadyExists
)

func (o UpsertOutcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "already_exists"
}

// Page selects a slice of a lane listing
type Page struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the limit to [1, MaxPageLimit] and the offset to >= 0
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// LaneStats summarises a user's records
type LaneStats struct {
	Total               int
	Opportunities       int
	Operations          int
	UnreadOpportunities int
	UnreadOperations    int
	AvgThesisScore      float64
}

// ScanState is the lifecycle position of a scan
type ScanState string

const (
	ScanRequested         ScanState = "requested"
	ScanCredentialChecked ScanState = "credential_checked"
	ScanFetching          ScanState = "fetching"
	ScanClassifying       ScanState = "classifying"
	ScanPersisting        ScanState = "persisting"
	ScanCompleted         ScanState = "completed"
	ScanFailed            ScanState = "failed"
)

// ScanResult is the outcome of one scan run
type ScanResult struct {
	UserID    string
	State     ScanState
	Window    ScanWindow
	Found     int
	Processed int
	Skipped   int
	Errored   int
	Truncated bool
	Message   string
}

// Summarize fills Message with the counters
func (r *ScanResult) Summarize() {
	r.Message = fmt.Sprintf("found %d messages: %d processed, %d skipped, %d errored",
		r.Found, r.Processed, r.Skipped, r.Errored)
	if r.Truncated {
		r.Message += " (fetch truncated)"
	}
}
