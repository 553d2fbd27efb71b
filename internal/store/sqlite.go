package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/curvelaunch/botworker/internal/domain"
	"github.com/curvelaunch/botworker/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS bots (
		token_mint TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		encrypted_credential TEXT NOT NULL,
		persona_json TEXT NOT NULL,
		last_error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bots_status ON bots(status);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListActiveBots retrieves all bot records with status ACTIVE.
func (s *SQLiteStore) ListActiveBots(ctx context.Context) ([]*domain.BotRecord, error) {
	query := `
		SELECT token_mint, status, encrypted_credential, persona_json,
		       last_error, created_at, updated_at
		FROM bots WHERE status = ?`

	rows, err := s.db.QueryContext(ctx, query, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query active bots: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close active bots rows", "error", closeErr)
		}
	}()

	var bots []*domain.BotRecord
	for rows.Next() {
		bot, err := scanBot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan active bot row: %w", err)
		}
		bots = append(bots, bot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active bots: %w", err)
	}

	return bots, nil
}

// GetBot retrieves one bot record by token mint.
func (s *SQLiteStore) GetBot(ctx context.Context, tokenMint string) (*domain.BotRecord, error) {
	query := `
		SELECT token_mint, status, encrypted_credential, persona_json,
		       last_error, created_at, updated_at
		FROM bots WHERE token_mint = ?`

	row := s.db.QueryRowContext(ctx, query, tokenMint)

	bot, err := scanBot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bot row: %w", err)
	}
	return bot, nil
}

// UpsertBot creates or updates a bot record.
func (s *SQLiteStore) UpsertBot(ctx context.Context, bot *domain.BotRecord) error {
	query := `
	INSERT INTO bots (token_mint, status, encrypted_credential, persona_json, last_error, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(token_mint) DO UPDATE SET
		status = excluded.status,
		encrypted_credential = excluded.encrypted_credential,
		persona_json = excluded.persona_json,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at`

	var lastError interface{}
	if bot.LastError != "" {
		lastError = bot.LastError
	}

	_, err := s.db.ExecContext(ctx, query,
		bot.TokenMint, string(bot.Status), bot.EncryptedCredential,
		bot.PersonaJSON, lastError,
		bot.CreatedAt.Unix(), bot.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert bot: %w", err)
	}
	return nil
}

// UpdateBotStatus updates a record's status and last error message.
// Retries with exponential backoff on SQLITE_BUSY, since the web side
// writes to the same database.
func (s *SQLiteStore) UpdateBotStatus(ctx context.Context, tokenMint string, status domain.BotStatus, lastError string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.updateBotStatusOnce(ctx, tokenMint, status, lastError)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("UpdateBotStatus hit SQLITE_BUSY, retrying",
				"token", tokenMint,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("update bot status for %s after %d attempts: %w", tokenMint, i+1, err)
	}

	return nil
}

func (s *SQLiteStore) updateBotStatusOnce(ctx context.Context, tokenMint string, status domain.BotStatus, lastError string) error {
	query := `UPDATE bots SET status = ?, last_error = ?, updated_at = ? WHERE token_mint = ?`

	var lastErrArg interface{}
	if lastError != "" {
		lastErrArg = lastError
	}

	result, err := s.db.ExecContext(ctx, query, string(status), lastErrArg, time.Now().Unix(), tokenMint)
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("bot not found: %s", tokenMint)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type scanFunc func(dest ...any) error

func scanBot(scan scanFunc) (*domain.BotRecord, error) {
	var bot domain.BotRecord
	var status string
	var lastError sql.NullString
	var createdAt, updatedAt int64

	err := scan(
		&bot.TokenMint, &status, &bot.EncryptedCredential,
		&bot.PersonaJSON, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	bot.Status = domain.BotStatus(status)
	bot.LastError = lastError.String
	bot.CreatedAt = time.Unix(createdAt, 0)
	bot.UpdatedAt = time.Unix(updatedAt, 0)

	return &bot, nil
}
