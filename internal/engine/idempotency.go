package engine

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/logging"
	"github.com/instapay/instapay-backend/internal/repository"
)

// withIdempotency guards a mutating operation against duplicate execution
// under client retry. The first submission of a key claims it as pending; the
// operation itself flips it to completed inside its own database transaction,
// so the outcome and the balance mutations become visible atomically.
//
// Replays: completed returns the stored record without executing, pending
// fails with ErrOperationInProgress, failed replays the recorded failure, and
// a key reused with a different payload fails with ErrIdempotencyMismatch.
// An empty key bypasses the guard entirely.
func (e *Engine) withIdempotency(ctx context.Context, key, requestHash string, op func(context.Context) (*domain.Transaction, error)) (*domain.Transaction, error) {
	if key == "" {
		return op(ctx)
	}

	started, existing, err := e.idempotency.Begin(ctx, key, requestHash)
	if err != nil {
		return nil, fmt.Errorf("withIdempotency: %w", err)
	}

	if !started {
		return e.replay(ctx, key, requestHash, existing)
	}

	txn, err := op(ctx)
	if err != nil {
		if markErr := e.idempotency.MarkFailed(ctx, key, err.Error()); markErr != nil {
			log := logging.FromContext(ctx)
			log.Error("failed to record operation failure", "error", markErr, "idempotency_key", key)
		}
		return nil, err
	}
	return txn, nil
}

func (e *Engine) replay(ctx context.Context, key, requestHash string, rec *repository.OperationRecord) (*domain.Transaction, error) {
	if rec == nil {
		// Claimed concurrently but not yet readable; treat as in flight.
		return nil, fmt.Errorf("replay: %w", domain.ErrOperationInProgress)
	}

	if rec.RequestHash != requestHash {
		return nil, fmt.Errorf("replay: %w", domain.ErrIdempotencyMismatch)
	}

	switch rec.Status {
	case repository.OperationStatusCompleted:
		if rec.TransactionID == nil {
			return nil, fmt.Errorf("replay: completed operation %q has no transaction", key)
		}
		txn, err := e.ledger.GetByID(ctx, *rec.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		return txn, nil
	case repository.OperationStatusFailed:
		reason := "unknown"
		if rec.FailureReason != nil {
			reason = *rec.FailureReason
		}
		return nil, fmt.Errorf("replay: %s: %w", reason, domain.ErrOperationFailed)
	default:
		return nil, fmt.Errorf("replay: %w", domain.ErrOperationInProgress)
	}
}

func requestHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
