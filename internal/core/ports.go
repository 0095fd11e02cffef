package core

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with LLM services
type LLMClient interface {
	// Generate sends a single prompt and returns the raw model text
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName identifies the model answering prompts
	ModelName() string
}

// ListQuery selects one page of provider message ids
type ListQuery struct {
	Query     string
	After     time.Time
	Before    time.Time
	PageToken string
	PageSize  int64
}

// MessageRef is a listed message id
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessagePage is one page of a listing
type MessagePage struct {
	Messages      []MessageRef
	NextPageToken string
}

// MailProvider defines the interface to a mailbox provider
type MailProvider interface {
	// ListMessages returns one page of message ids matching q
	ListMessages(ctx context.Context, token AccessToken, q ListQuery) (*MessagePage, error)

	// GetMessage fetches one message with headers and body
	GetMessage(ctx context.Context, token AccessToken, id string) (*RawMessage, error)
}

// RecordStore defines the interface for persisting classified messages
type RecordStore interface {
	// UpsertIfAbsent inserts rec unless (UserID, ProviderMsgID) is already stored
	UpsertIfAbsent(ctx context.Context, rec *ClassifiedMessage) (UpsertOutcome, error)

	// Exists reports whether a record for the provider message is stored
	Exists(ctx context.Context, userID, providerMsgID string) (bool, error)

	// MarkRevealed sets the read flag of a record owned by userID
	MarkRevealed(ctx context.Context, userID, recordID string) error

	// ListByLane returns the user's records in a lane, newest first
	ListByLane(ctx context.Context, userID string, lane Lane, page Page) ([]*ClassifiedMessage, error)

	// Stats aggregates the user's records per lane
	Stats(ctx context.Context, userID string) (*LaneStats, error)
}

// ProfileRepository defines the interface for user profiles
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	SaveProfile(ctx context.Context, profile *UserProfile) error
	ListProfiles(ctx context.Context) ([]*UserProfile, error)
	// MarkFreeScanUsed records that the user consumed the free scan
	MarkFreeScanUsed(ctx context.Context, userID string) error
}

// CredentialRepository defines the interface for stored mailbox credentials
type CredentialRepository interface {
	// GetCredential returns ErrNotConnected when nothing is stored
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	ReplaceCredential(ctx context.Context, cred *Credential) error
	DeleteCredential(ctx context.Context, userID string) error
	ListConnectedUsers(ctx context.Context) ([]string, error)
}

// ScanStateRepository remembers the last successful scan of each user
type ScanStateRepository interface {
	// LastSuccessfulScan returns the zero time when the user never completed a scan
	LastSuccessfulScan(ctx context.Context, userID string) (time.Time, error)
	RecordSuccessfulScan(ctx context.Context, userID string, until time.Time) error
}

// Store bundles every persistence port served by one backend
type Store interface {
	RecordStore
	ProfileRepository
	CredentialRepository
	ScanStateRepository
	Close() error
}
