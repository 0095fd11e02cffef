package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

type recordKey struct {
	userID        string
	providerMsgID string
}

// MemoryStore is an in-memory implementation of core.Store
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]*core.ClassifiedMessage
	byProvider  map[recordKey]string
	profiles    map[string]*core.UserProfile
	credentials map[string]*core.Credential
	lastScan    map[string]time.Time
	logger      *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*core.ClassifiedMessage),
		byProvider:  make(map[recordKey]string),
		profiles:    make(map[string]*core.UserProfile),
		credentials: make(map[string]*core.Credential),
		lastScan:    make(map[string]time.Time),
		logger:      logger,
	}
}

// UpsertIfAbsent inserts rec unless its provider message is already stored
func (s *MemoryStore) UpsertIfAbsent(_ context.Context, rec *core.ClassifiedMessage) (core.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.UserID, rec.ProviderMsgID}
	if _, ok := s.byProvider[key]; ok {
		return core.AlreadyExists, nil
	}

	stored := copyRecord(rec)
	s.records[stored.ID] = stored
	s.byProvider[key] = stored.ID
	return core.Inserted, nil
}

// Exists reports whether a record for the provider message is stored
func (s *MemoryStore) Exists(_ context.Context, userID, providerMsgID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byProvider[recordKey{userID, providerMsgID}]
	return ok, nil
}

// MarkRevealed sets the read flag of a record owned by userID
func (s *MemoryStore) MarkRevealed(_ context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordID]
	if !ok || rec.UserID != userID {
		return core.ErrRecordNotFound
	}
	rec.Read = true
	return nil
}

// ListByLane returns the user's records in a lane, newest first
func (s *MemoryStore) ListByLane(_ context.Context, userID string, lane core.Lane, page core.Page) ([]*core.ClassifiedMessage, error) {
	page = page.Normalize()

	s.mu.RLock()
	var matched []*core.ClassifiedMessage
	for _, rec := range s.records {
		if rec.UserID != userID || rec.Lane != lane {
			continue
		}
		if page.UnreadOnly && rec.Read {
			continue
		}
		matched = append(matched, copyRecord(rec))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page.Offset >= len(matched) {
		return []*core.ClassifiedMessage{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

// Stats aggregates the user's records per lane
func (s *MemoryStore) Stats(_ context.Context, userID string) (*core.LaneStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &core.LaneStats{}
	var scoreSum, scored int
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		stats.Total++
		switch rec.Lane {
		case core.LaneOpportunity:
			stats.Opportunities++
			if !rec.Read {
				stats.UnreadOpportunities++
			}
		case core.LaneOperation:
			stats.Operations++
			if !rec.Read {
				stats.UnreadOperations++
			}
		}
		if rec.ThesisMatchScore != nil {
			scoreSum += *rec.ThesisMatchScore
			scored++
		}
	}
	if scored > 0 {
		stats.AvgThesisScore = float64(scoreSum) / float64(scored)
	}
	return stats, nil
}

// GetProfile returns a copy of the stored profile
func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, core.ErrProfileNotFound
	}
	cp := *p
	cp.Keywords = append([]string(nil), p.Keywords...)
	return &cp, nil
}

// SaveProfile creates or replaces a profile
func (s *MemoryStore) SaveProfile(_ context.Context, profile *core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	cp.Keywords = append([]string(nil), profile.Keywords...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.profiles[cp.ID] = &cp
	return nil
}

// ListProfiles returns all profiles ordered by id
func (s *MemoryStore) ListProfiles(ctx context.Context) ([]*core.UserProfile, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*core.UserProfile, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProfile(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// MarkFreeScanUsed records that the user consumed the free scan
func (s *MemoryStore) MarkFreeScanUsed(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return core.ErrProfileNotFound
	}
	p.Subscription.FreeScanUsed = true
	return nil
}

// GetCredential returns core.ErrNotConnected when nothing is stored
func (s *MemoryStore) GetCredential(_ context.Context, userID string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userID]
	if !ok {
		return nil, core.ErrNotConnected
	}
	cp := *c
	return &cp, nil
}

// ReplaceCredential stores cred, replacing any previous credential of the user
func (s *MemoryStore) ReplaceCredential(_ context.Context, cred *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cred
	s.credentials[cred.UserID] = &cp
	return nil
}

// DeleteCredential disconnects the user's mailbox
func (s *MemoryStore) DeleteCredential(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, userID)
	return nil
}

// ListConnectedUsers returns the ids of users with a stored credential
func (s *MemoryStore) ListConnectedUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.credentials))
	for id := range s.credentials {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LastSuccessfulScan returns the upper bound of the user's last completed scan
func (s *MemoryStore) LastSuccessfulScan(_ context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastScan[userID], nil
}

// RecordSuccessfulScan remembers until as the user's last completed scan bound
func (s *MemoryStore) RecordSuccessfulScan(_ context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if until.After(s.lastScan[userID]) {
		s.lastScan[userID] = until
	}
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

func copyRecord(rec *core.ClassifiedMessage) *core.ClassifiedMessage {
	cp := *rec
	if rec.ThesisMatchScore != nil {
		score := *rec.ThesisMatchScore
		cp.ThesisMatchScore = &score
	}
	return &cp
}
