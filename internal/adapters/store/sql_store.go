package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name         string
	insertIgnore string
	schema       []string
}

// TokenCipher protects OAuth tokens written to the credentials table
type TokenCipher interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

type plainTokens struct{}

func (plainTokens) Seal(s string) (string, error) { return s, nil }
func (plainTokens) Open(s string) (string, error) { return s, nil }

// SQLStore is a database/sql implementation of core.Store
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	tokens  TokenCipher
	logger  *zap.Logger
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, dialect: d, tokens: plainTokens{}, logger: logger}, nil
}

// EncryptTokens makes the store seal access and refresh tokens at rest
func (s *SQLStore) EncryptTokens(c TokenCipher) {
	s.tokens = c
}

const recordColumns = `id, user_id, provider_msg_id, sender, subject, msg_date, lane, category,
	priority, importance_score, thesis_score, summary, link, is_read, created_at`

// UpsertIfAbsent inserts rec unless (user_id, provider_msg_id) is already stored.
// The unique constraint decides races; zero affected rows means a peer won.
func (s *SQLStore) UpsertIfAbsent(ctx context.Context, rec *core.ClassifiedMessage) (core.UpsertOutcome, error) {
	var thesis sql.NullInt64
	if rec.ThesisMatchScore != nil {
		thesis = sql.NullInt64{Int64: int64(*rec.ThesisMatchScore), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, s.dialect.insertIgnore+` INTO classified_messages (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ProviderMsgID, rec.Sender, rec.Subject, toNanos(rec.Date),
		string(rec.Lane), rec.Category, string(rec.Priority), rec.ImportanceScore, thesis,
		rec.Summary, rec.Link, rec.Read, toNanos(rec.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return core.AlreadyExists, nil
	}
	return core.Inserted, nil
}

// Exists reports whether a record for the provider message is stored
func (s *SQLStore) Exists(ctx context.Context, userID, providerMsgID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classified_messages
		WHERE user_id = ? AND provider_msg_id = ?`, userID, providerMsgID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return n > 0, nil
}

// MarkRevealed sets the read flag of a record owned by userID
func (s *SQLStore) MarkRevealed(ctx context.Context, userID, recordID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE classified_messages SET is_read = 1
		WHERE id = ? AND user_id = ?`, recordID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark record read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	// already read rows may report zero affected rows
	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classified_messages
		WHERE id = ? AND user_id = ?`, recordID, userID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check record: %w", err)
	}
	if count == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

// ListByLane returns the user's records in a lane, newest first
func (s *SQLStore) ListByLane(ctx context.Context, userID string, lane core.Lane, page core.Page) ([]*core.ClassifiedMessage, error) {
	page = page.Normalize()

	query := `SELECT ` + recordColumns + ` FROM classified_messages WHERE user_id = ? AND lane = ?`
	if page.UnreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, userID, string(lane), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	out := []*core.ClassifiedMessage{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Stats aggregates the user's records per lane
func (s *SQLStore) Stats(ctx context.Context, userID string) (*core.LaneStats, error) {
	var stats core.LaneStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN lane = 'opportunity' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN lane = 'operation' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN lane = 'opportunity' AND is_read = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN lane = 'operation' AND is_read = 0 THEN 1 ELSE 0 END), 0),
			AVG(thesis_score)
		FROM classified_messages WHERE user_id = ?`, userID).Scan(
		&stats.Total, &stats.Opportunities, &stats.Operations,
		&stats.UnreadOpportunities, &stats.UnreadOperations, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	if avg.Valid {
		stats.AvgThesisScore = avg.Float64
	}
	return &stats, nil
}

// GetProfile returns the stored profile
func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email, role, keywords, context,
		sub_status, free_scan_used, sub_expires_at, created_at FROM profiles WHERE id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrProfileNotFound
	}
	return p, err
}

// SaveProfile creates or replaces a profile
func (s *SQLStore) SaveProfile(ctx context.Context, profile *core.UserProfile) error {
	keywords, err := json.Marshal(profile.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `REPLACE INTO profiles (id, email, role, keywords, context,
		sub_status, free_scan_used, sub_expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID, profile.Email, string(profile.Role), string(keywords), profile.Context,
		string(profile.Subscription.Status), profile.Subscription.FreeScanUsed,
		toNanos(profile.Subscription.ExpiresAt), toNanos(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// ListProfiles returns all profiles ordered by id
func (s *SQLStore) ListProfiles(ctx context.Context) ([]*core.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, role, keywords, context,
		sub_status, free_scan_used, sub_expires_at, created_at FROM profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*core.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkFreeScanUsed records that the user consumed the free scan
func (s *SQLStore) MarkFreeScanUsed(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET free_scan_used = 1 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark free scan used: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetProfile(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// GetCredential returns core.ErrNotConnected when nothing is stored
func (s *SQLStore) GetCredential(ctx context.Context, userID string) (*core.Credential, error) {
	var c core.Credential
	var expiry int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id, access_token, refresh_token, expiry
		FROM credentials WHERE user_id = ?`, userID).Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if c.AccessToken, err = s.tokens.Open(c.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	if c.RefreshToken, err = s.tokens.Open(c.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}
	c.Expiry = fromNanos(expiry)
	return &c, nil
}

// ReplaceCredential stores cred, replacing any previous credential of the user
func (s *SQLStore) ReplaceCredential(ctx context.Context, cred *core.Credential) error {
	access, err := s.tokens.Seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refresh, err := s.tokens.Seal(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `REPLACE INTO credentials (user_id, access_token, refresh_token, expiry)
		VALUES (?, ?, ?, ?)`, cred.UserID, access, refresh, toNanos(cred.Expiry))
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// DeleteCredential disconnects the user's mailbox
func (s *SQLStore) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// ListConnectedUsers returns the ids of users with a stored credential
func (s *SQLStore) ListConnectedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM credentials ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastSuccessfulScan returns the upper bound of the user's last completed scan
func (s *SQLStore) LastSuccessfulScan(ctx context.Context, userID string) (time.Time, error) {
	var until int64
	err := s.db.QueryRowContext(ctx, `SELECT last_success FROM scan_state WHERE user_id = ?`, userID).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load scan state: %w", err)
	}
	return fromNanos(until), nil
}

// RecordSuccessfulScan remembers until as the user's last completed scan bound
func (s *SQLStore) RecordSuccessfulScan(ctx context.Context, userID string, until time.Time) error {
	last, err := s.LastSuccessfulScan(ctx, userID)
	if err != nil {
		return err
	}
	if !until.After(last) {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `REPLACE INTO scan_state (user_id, last_success) VALUES (?, ?)`,
		userID, toNanos(until))
	if err != nil {
		return fmt.Errorf("failed to record scan state: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", s.dialect.name, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.ClassifiedMessage, error) {
	var rec core.ClassifiedMessage
	var lane, priority string
	var msgDate, createdAt int64
	var thesis sql.NullInt64
	err := row.Scan(&rec.ID, &rec.UserID, &rec.ProviderMsgID, &rec.Sender, &rec.Subject, &msgDate,
		&lane, &rec.Category, &priority, &rec.ImportanceScore, &thesis, &rec.Summary, &rec.Link,
		&rec.Read, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Lane = core.Lane(lane)
	rec.Priority = core.Priority(priority)
	rec.Date = fromNanos(msgDate)
	rec.CreatedAt = fromNanos(createdAt)
	if thesis.Valid {
		score := int(thesis.Int64)
		rec.ThesisMatchScore = &score
	}
	return &rec, nil
}

func scanProfile(row rowScanner) (*core.UserProfile, error) {
	var p core.UserProfile
	var role, keywords, status string
	var expires, createdAt int64
	err := row.Scan(&p.ID, &p.Email, &role, &keywords, &p.Context,
		&status, &p.Subscription.FreeScanUsed, &expires, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords of %s: %w", p.ID, err)
	}
	p.Role = core.Role(role)
	p.Subscription.Status = core.SubscriptionStatus(status)
	p.Subscription.ExpiresAt = fromNanos(expires)
	p.CreatedAt = fromNanos(createdAt)
	return &p, nil
}

// times are stored as unix nanoseconds; zero means unset
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
