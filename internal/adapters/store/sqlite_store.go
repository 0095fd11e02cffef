package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name:         "sqlite",
	insertIgnore: "INSERT OR IGNORE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS classified_messages (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(191) NOT NULL,
			provider_msg_id VARCHAR(191) NOT NULL,
			sender TEXT NOT NULL,
			subject TEXT NOT NULL,
			msg_date BIGINT NOT NULL,
			lane VARCHAR(32) NOT NULL,
			category VARCHAR(64) NOT NULL,
			priority VARCHAR(32) NOT NULL,
			importance_score INTEGER NOT NULL,
			thesis_score INTEGER,
			summary TEXT NOT NULL,
			link TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			UNIQUE (user_id, provider_msg_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_lane ON classified_messages(user_id, lane, created_at)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id VARCHAR(191) PRIMARY KEY,
			email TEXT NOT NULL,
			role VARCHAR(32) NOT NULL,
			keywords TEXT NOT NULL,
			context TEXT NOT NULL,
			sub_status VARCHAR(32) NOT NULL,
			free_scan_used BOOLEAN NOT NULL DEFAULT 0,
			sub_expires_at BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id VARCHAR(191) PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expiry BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scan_state (
			user_id VARCHAR(191) PRIMARY KEY,
			last_success BIGINT NOT NULL
		)`,
	},
}

// NewSQLiteStore opens (and migrates) a SQLite database at dbPath
func NewSQLiteStore(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer avoids SQLITE_BUSY under concurrent upserts
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(ctx, db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return s, nil
}
