package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// HashKey returns the hex sha256 of a raw bearer token. Accounts are looked
// up by this hash; raw tokens are never stored.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// GetAccountByKeyHash retrieves a caller account by its hashed bearer token
func (db *DB) GetAccountByKeyHash(ctx context.Context, keyHash string) (*models.CallerAccount, error) {
	query := `
		SELECT id, key_hash, name, monthly_budget_usd, usage_usd, model_patterns,
		       rate_limit_per_minute, is_active, created_at, updated_at
		FROM accounts
		WHERE key_hash = $1 AND is_active = true
	`

	var acct models.CallerAccount
	err := db.conn.QueryRowContext(ctx, query, keyHash).Scan(
		&acct.ID,
		&acct.KeyHash,
		&acct.Name,
		&acct.MonthlyBudgetUSD,
		&acct.UsageUSD,
		pq.Array(&acct.ModelPatterns),
		&acct.RateLimitPerMinute,
		&acct.IsActive,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &acct, nil
}

// AddUsage increments an account's cumulative usage by the computed cost.
// The increment happens in the database, not via read-modify-write in the
// gateway, but concurrent asks can still overshoot the budget ceiling
// between the budget check and this write.
func (db *DB) AddUsage(ctx context.Context, accountID string, costUSD float64) error {
	query := `UPDATE accounts SET usage_usd = usage_usd + $1, updated_at = NOW() WHERE id = $2`
	_, err := db.conn.ExecContext(ctx, query, costUSD, accountID)
	return err
}

// InsertJournal appends one request journal row. Insertion is the only
// mutation path; at most one row exists per request id.
func (db *DB) InsertJournal(ctx context.Context, rec *models.JournalRecord) error {
	query := `
		INSERT INTO request_journal (
			request_id, correlation_id, account_id, model, provider, status,
			prompt_tokens, completion_tokens, cost_usd, latency_ms, content,
			request_snapshot, response_snapshot, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		rec.RequestID,
		rec.CorrelationID,
		rec.AccountID,
		rec.Model,
		rec.Provider,
		rec.Status,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.CostUSD,
		rec.LatencyMs,
		rec.Content,
		rec.RequestSnapshot,
		rec.ResponseSnapshot,
		rec.ErrorMessage,
		rec.CreatedAt,
	)

	return err
}

// GetJournal retrieves a journal row by request id, scoped to the caller's
// own account. Knowing a request id issued to another caller is not enough
// to read its row.
func (db *DB) GetJournal(ctx context.Context, requestID, accountID string) (*models.JournalRecord, error) {
	query := `
		SELECT id, request_id, correlation_id, account_id, model, provider, status,
		       prompt_tokens, completion_tokens, cost_usd, latency_ms, content,
		       request_snapshot, response_snapshot, error_message, created_at
		FROM request_journal
		WHERE request_id = $1 AND account_id = $2
	`

	var rec models.JournalRecord
	err := db.conn.QueryRowContext(ctx, query, requestID, accountID).Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.CorrelationID,
		&rec.AccountID,
		&rec.Model,
		&rec.Provider,
		&rec.Status,
		&rec.PromptTokens,
		&rec.CompletionTokens,
		&rec.CostUSD,
		&rec.LatencyMs,
		&rec.Content,
		&rec.RequestSnapshot,
		&rec.ResponseSnapshot,
		&rec.ErrorMessage,
		&rec.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &rec, nil
}

// GetModelPricing retrieves pricing for a model
func (db *DB) GetModelPricing(ctx context.Context, provider, model string) (*models.ModelPricing, error) {
	query := `
		SELECT id, provider, model, input_per_1k_tokens, output_per_1k_tokens,
		       created_at, updated_at
		FROM model_pricing
		WHERE provider = $1 AND model = $2
	`

	var pricing models.ModelPricing
	err := db.conn.QueryRowContext(ctx, query, provider, model).Scan(
		&pricing.ID,
		&pricing.Provider,
		&pricing.Model,
		&pricing.InputPer1kTokens,
		&pricing.OutputPer1kTokens,
		&pricing.CreatedAt,
		&pricing.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &pricing, nil
}
