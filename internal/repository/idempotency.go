package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// OperationRecord maps a client-chosen idempotency key to the outcome of the
// engine operation it was first submitted with.
type OperationRecord struct {
	Key           string
	RequestHash   string
	Status        OperationStatus
	TransactionID *uuid.UUID
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Begin claims the key for the caller. It reports true if this caller owns
// the attempt; false means the key was already claimed and the prior record
// is returned instead.
func (r *IdempotencyRepository) Begin(ctx context.Context, key, requestHash string) (bool, *OperationRecord, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, request_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (key) DO NOTHING`,
		key, requestHash, OperationStatusPending, now,
	)
	if err != nil {
		return false, nil, fmt.Errorf("Begin: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("Begin: rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil, nil
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return false, nil, fmt.Errorf("Begin: %w", err)
	}
	return false, existing, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*OperationRecord, error) {
	var rec OperationRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT key, request_hash, status, transaction_id, failure_reason, created_at, updated_at
		FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&rec.Key, &rec.RequestHash, &rec.Status, &rec.TransactionID, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &rec, nil
}

// MarkCompleted runs inside the engine's transaction, so the outcome becomes
// visible in the same commit as the balance mutations and the ledger record.
func (r *IdempotencyRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, key string, transactionID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE idempotency_keys
		SET status = $1, transaction_id = $2, updated_at = now()
		WHERE key = $3`,
		OperationStatusCompleted, transactionID, key,
	)
	if err != nil {
		return fmt.Errorf("MarkCompleted: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_keys
		SET status = $1, failure_reason = $2, updated_at = now()
		WHERE key = $3`,
		OperationStatusFailed, reason, key,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}
