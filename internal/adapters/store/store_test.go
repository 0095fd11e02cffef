package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func backends(t *testing.T) map[string]core.Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "triage.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]core.Store{
		"memory": NewMemoryStore(zap.NewNop()),
		"sqlite": sqlite,
	}
}

func newRecord(userID, msgID string, lane core.Lane, createdAt time.Time) *core.ClassifiedMessage {
	rec := &core.ClassifiedMessage{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProviderMsgID:   msgID,
		Sender:          "founder@startup.io",
		Subject:         "subject " + msgID,
		Date:            createdAt.Add(-time.Hour),
		Lane:            lane,
		Category:        "STANDARD",
		Priority:        core.PriorityUseful,
		ImportanceScore: 50,
		Summary:         "summary",
		Link:            "https://mail.example/" + msgID,
		CreatedAt:       createdAt,
	}
	if lane == core.LaneOpportunity {
		score := 80
		rec.ThesisMatchScore = &score
		rec.ImportanceScore = score
		rec.Category = "OPPORTUNITY"
	}
	return rec
}

func TestUpsertIfAbsentIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			outcome, err := s.UpsertIfAbsent(ctx, newRecord("u1", "m1", core.LaneOpportunity, now))
			require.NoError(t, err)
			assert.Equal(t, core.Inserted, outcome)

			outcome, err = s.UpsertIfAbsent(ctx, newRecord("u1", "m1", core.LaneOperation, now))
			require.NoError(t, err)
			assert.Equal(t, core.AlreadyExists, outcome)

			// same provider id for another user is a different record
			outcome, err = s.UpsertIfAbsent(ctx, newRecord("u2", "m1", core.LaneOperation, now))
			require.NoError(t, err)
			assert.Equal(t, core.Inserted, outcome)

			exists, err := s.Exists(ctx, "u1", "m1")
			require.NoError(t, err)
			assert.True(t, exists)

			recs, err := s.ListByLane(ctx, "u1", core.LaneOpportunity, core.Page{})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			require.NotNil(t, recs[0].ThesisMatchScore)
			assert.Equal(t, 80, *recs[0].ThesisMatchScore)
		})
	}
}

func TestConcurrentUpsertSingleWinner(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			const writers = 8
			outcomes := make(chan core.UpsertOutcome, writers)
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					outcome, err := s.UpsertIfAbsent(ctx, newRecord("u1", "race", core.LaneOperation, now))
					assert.NoError(t, err)
					outcomes <- outcome
				}()
			}
			wg.Wait()
			close(outcomes)

			inserted := 0
			for o := range outcomes {
				if o == core.Inserted {
					inserted++
				}
			}
			assert.Equal(t, 1, inserted)

			stats, err := s.Stats(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Total)
		})
	}
}

func TestMarkRevealed(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord("u1", "m1", core.LaneOperation, time.Now())
			_, err := s.UpsertIfAbsent(ctx, rec)
			require.NoError(t, err)

			require.NoError(t, s.MarkRevealed(ctx, "u1", rec.ID))
			require.NoError(t, s.MarkRevealed(ctx, "u1", rec.ID))

			assert.ErrorIs(t, s.MarkRevealed(ctx, "u2", rec.ID), core.ErrRecordNotFound)
			assert.ErrorIs(t, s.MarkRevealed(ctx, "u1", "missing"), core.ErrRecordNotFound)

			recs, err := s.ListByLane(ctx, "u1", core.LaneOperation, core.Page{})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.True(t, recs[0].Read)

			unread, err := s.ListByLane(ctx, "u1", core.LaneOperation, core.Page{UnreadOnly: true})
			require.NoError(t, err)
			assert.Empty(t, unread)
		})
	}
}

func TestListByLaneOrderingAndPaging(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				_, err := s.UpsertIfAbsent(ctx, newRecord("u1", fmt.Sprintf("m%d", i), core.LaneOperation, base.Add(time.Duration(i)*time.Minute)))
				require.NoError(t, err)
			}
			_, err := s.UpsertIfAbsent(ctx, newRecord("u1", "other-lane", core.LaneOpportunity, base))
			require.NoError(t, err)

			recs, err := s.ListByLane(ctx, "u1", core.LaneOperation, core.Page{Limit: 2})
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "m4", recs[0].ProviderMsgID)
			assert.Equal(t, "m3", recs[1].ProviderMsgID)

			recs, err = s.ListByLane(ctx, "u1", core.LaneOperation, core.Page{Limit: 2, Offset: 4})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "m0", recs[0].ProviderMsgID)

			// limit is clamped rather than rejected
			recs, err = s.ListByLane(ctx, "u1", core.LaneOperation, core.Page{Limit: 1000, Offset: -3})
			require.NoError(t, err)
			assert.Len(t, recs, 5)

			recs, err = s.ListByLane(ctx, "u1", core.LaneOperation, core.Page{Offset: 50})
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestStats(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			op := newRecord("u1", "op", core.LaneOperation, now)
			_, err := s.UpsertIfAbsent(ctx, op)
			require.NoError(t, err)
			_, err = s.UpsertIfAbsent(ctx, newRecord("u1", "opp1", core.LaneOpportunity, now))
			require.NoError(t, err)
			low := newRecord("u1", "opp2", core.LaneOpportunity, now)
			score := 60
			low.ThesisMatchScore = &score
			_, err = s.UpsertIfAbsent(ctx, low)
			require.NoError(t, err)
			require.NoError(t, s.MarkRevealed(ctx, "u1", op.ID))

			stats, err := s.Stats(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 3, stats.Total)
			assert.Equal(t, 2, stats.Opportunities)
			assert.Equal(t, 1, stats.Operations)
			assert.Equal(t, 2, stats.UnreadOpportunities)
			assert.Equal(t, 0, stats.UnreadOperations)
			assert.InDelta(t, 70.0, stats.AvgThesisScore, 0.001)

			empty, err := s.Stats(ctx, "nobody")
			require.NoError(t, err)
			assert.Equal(t, 0, empty.Total)
		})
	}
}

func TestProfilesAndCredentials(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetProfile(ctx, "u1")
			assert.ErrorIs(t, err, core.ErrProfileNotFound)

			expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, s.SaveProfile(ctx, &core.UserProfile{
				ID:       "u1",
				Email:    "vc@fund.com",
				Role:     core.RoleInvestor,
				Keywords: []string{"fintech", "seed"},
				Context:  "pre-seed B2B",
				Subscription: core.SubscriptionState{
					Status:    core.SubscriptionTrial,
					ExpiresAt: expires,
				},
			}))

			p, err := s.GetProfile(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"fintech", "seed"}, p.Keywords)
			assert.Equal(t, core.RoleInvestor, p.Role)
			assert.True(t, p.Subscription.ExpiresAt.Equal(expires))
			assert.False(t, p.Subscription.FreeScanUsed)

			require.NoError(t, s.MarkFreeScanUsed(ctx, "u1"))
			p, err = s.GetProfile(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, p.Subscription.FreeScanUsed)
			assert.ErrorIs(t, s.MarkFreeScanUsed(ctx, "ghost"), core.ErrProfileNotFound)

			_, err = s.GetCredential(ctx, "u1")
			assert.ErrorIs(t, err, core.ErrNotConnected)

			expiry := time.Now().Add(time.Hour).UTC()
			require.NoError(t, s.ReplaceCredential(ctx, &core.Credential{UserID: "u1", AccessToken: "a", RefreshToken: "r", Expiry: expiry}))
			require.NoError(t, s.ReplaceCredential(ctx, &core.Credential{UserID: "u1", AccessToken: "b", RefreshToken: "r", Expiry: expiry}))

			cred, err := s.GetCredential(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "b", cred.AccessToken)
			assert.True(t, cred.Expiry.Equal(expiry))

			users, err := s.ListConnectedUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"u1"}, users)

			require.NoError(t, s.DeleteCredential(ctx, "u1"))
			_, err = s.GetCredential(ctx, "u1")
			assert.ErrorIs(t, err, core.ErrNotConnected)
		})
	}
}

func TestScanState(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			last, err := s.LastSuccessfulScan(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, last.IsZero())

			t1 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
			require.NoError(t, s.RecordSuccessfulScan(ctx, "u1", t1))
			// an older bound never moves the watermark back
			require.NoError(t, s.RecordSuccessfulScan(ctx, "u1", t1.Add(-time.Hour)))

			last, err = s.LastSuccessfulScan(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, last.Equal(t1))
		})
	}
}

func TestSQLiteSealsTokensAtRest(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "triage.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// a row written before encryption was turned on
	require.NoError(t, s.ReplaceCredential(ctx, &core.Credential{UserID: "legacy", AccessToken: "plain", RefreshToken: "plain-r"}))

	sealer, err := secrets.NewSealer("a long enough test secret")
	require.NoError(t, err)
	s.EncryptTokens(sealer)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.ReplaceCredential(ctx, &core.Credential{UserID: "u1", AccessToken: "ya29.secret", RefreshToken: "1//refresh", Expiry: expiry}))

	var access, refresh string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token FROM credentials WHERE user_id = ?`, "u1").Scan(&access, &refresh))
	assert.NotContains(t, access, "ya29")
	assert.NotContains(t, refresh, "1//refresh")

	cred, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ya29.secret", cred.AccessToken)
	assert.Equal(t, "1//refresh", cred.RefreshToken)
	assert.True(t, expiry.Equal(cred.Expiry))

	legacy, err := s.GetCredential(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "plain", legacy.AccessToken)
}
