package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name:         "mysql",
	insertIgnore: "INSERT IGNORE",
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
			importance_score INT NOT NULL,
			thesis_score INT NULL,
			summary TEXT NOT NULL,
			link TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			UNIQUE KEY uq_user_msg (user_id, provider_msg_id),
			INDEX idx_messages_lane (user_id, lane, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
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
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS credentials (
			user_id VARCHAR(191) PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expiry BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS scan_state (
			user_id VARCHAR(191) PRIMARY KEY,
			last_success BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

// NewMySQLStore opens (and migrates) a MySQL database
func NewMySQLStore(ctx context.Context, dsn string, logger *zap.Logger) (*SQLStore, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}

	db, err := sql.Open("mysql", parsed.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	s, err := newSQLStore(ctx, db, mysqlDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Opened MySQL store", zap.String("addr", parsed.Addr), zap.String("db", parsed.DBName))
	return s, nil
}

// NewMySQLStoreFromDB wraps an already opened connection pool
func NewMySQLStoreFromDB(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLStore, error) {
	return newSQLStore(ctx, db, mysqlDialect, logger)
}
