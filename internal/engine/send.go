package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/logging"
)

type SendRequest struct {
	SenderAccountID    uuid.UUID
	ReceiverRoutingKey string
	Amount             decimal.Decimal
	IdempotencyKey     string
}

// Send moves Amount from the sender to the account behind the routing key.
// The sender is debited Amount plus commission plus VAT; the receiver is
// credited Amount. Debit, credit and the ledger record commit as one unit.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*domain.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("Send: %w", err)
	}

	hash := requestHash("send", req.SenderAccountID.String(), req.ReceiverRoutingKey, req.Amount.StringFixed(2))

	txn, err := e.withIdempotency(ctx, req.IdempotencyKey, hash, func(ctx context.Context) (*domain.Transaction, error) {
		return e.withRetry(ctx, func(ctx context.Context) (*domain.Transaction, error) {
			return e.executeSend(ctx, req)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("Send: %w", err)
	}

	log := logging.FromContext(ctx)
	log.Info("transfer completed",
		"transaction_id", txn.ID,
		"sender_account", txn.SenderAccountID,
		"receiver_account", txn.ReceiverAccountID,
		"amount", txn.Amount,
		"commission", txn.Commission,
		"vat", txn.VAT,
		"total_debit", txn.TotalAmount,
	)

	return txn, nil
}

// withRetry re-runs the whole read-validate-mutate sequence from a fresh read
// on a compare-and-set conflict, up to the engine's bounded budget.
func (e *Engine) withRetry(ctx context.Context, op func(context.Context) (*domain.Transaction, error)) (*domain.Transaction, error) {
	for range e.maxRetries {
		txn, err := op(ctx)
		if err == nil {
			return txn, nil
		}
		// A voucher collision is as transient as a CAS conflict: a fresh
		// attempt draws a fresh number.
		if !errors.Is(err, domain.ErrVersionConflict) && !errors.Is(err, domain.ErrDuplicateVoucher) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("withRetry: retry budget exhausted: %w", domain.ErrContention)
}

func (e *Engine) executeSend(ctx context.Context, req SendRequest) (*domain.Transaction, error) {
	sender, err := e.accounts.GetByID(ctx, req.SenderAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("executeSend: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("executeSend: %w", err)
	}

	receiver, err := e.accounts.GetByRoutingKey(ctx, req.ReceiverRoutingKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("executeSend: %w", domain.ErrReceiverNotFound)
		}
		return nil, fmt.Errorf("executeSend: %w", err)
	}

	if sender.ID == receiver.ID {
		return nil, fmt.Errorf("executeSend: %w", domain.ErrSelfTransfer)
	}
	if err := verifyAccountActive(sender, "sender"); err != nil {
		return nil, fmt.Errorf("executeSend: %w", err)
	}
	if err := verifyAccountActive(receiver, "receiver"); err != nil {
		return nil, fmt.Errorf("executeSend: %w", err)
	}

	breakdown := e.fees.Compute(req.Amount)
	if sender.Balance.LessThan(breakdown.TotalDebit) {
		return nil, fmt.Errorf("executeSend: %w", domain.ErrInsufficientFunds)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeSend: begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	locked, err := lockAccountsInOrder(ctx, tx, e.accounts, sender.ID, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("executeSend: %w", err)
	}
	sender, receiver = locked[sender.ID], locked[receiver.ID]

	// Everything before the locks was read without protection; re-validate
	// against the locked rows.
	if err := verifyAccountActive(sender, "sender"); err != nil {
		return nil, fmt.Errorf("executeSend: %w", err)
	}
	if err := verifyAccountActive(receiver, "receiver"); err != nil {
		return nil, fmt.Errorf("executeSend: %w", err)
	}
	if sender.Balance.LessThan(breakdown.TotalDebit) {
		return nil, fmt.Errorf("executeSend: %w", domain.ErrInsufficientFunds)
	}

	txn := &domain.Transaction{
		ID:                uuid.New(),
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		Kind:              domain.TransactionKindTransfer,
		Amount:            req.Amount,
		Commission:        breakdown.Commission,
		VAT:               breakdown.VAT,
		TotalAmount:       breakdown.TotalDebit,
		Status:            domain.TransactionStatusCompleted,
		CreatedAt:         time.Now().UTC(),
	}

	if err := e.ledger.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("executeSend: append record: %w", err)
	}

	if err := e.accounts.UpdateBalance(ctx, tx, sender.ID, sender.Balance.Sub(breakdown.TotalDebit), sender.Version+1); err != nil {
		return nil, fmt.Errorf("executeSend: debit sender: %w", err)
	}
	if err := e.accounts.UpdateBalance(ctx, tx, receiver.ID, receiver.Balance.Add(req.Amount), receiver.Version+1); err != nil {
		return nil, fmt.Errorf("executeSend: credit receiver: %w", err)
	}

	if req.IdempotencyKey != "" {
		if err := e.idempotency.MarkCompleted(ctx, tx, req.IdempotencyKey, txn.ID); err != nil {
			return nil, fmt.Errorf("executeSend: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeSend: commit: %w", err)
	}

	return txn, nil
}

// lockAccountsInOrder takes FOR UPDATE locks in ascending ID order, so two
// transfers touching the same pair of accounts in opposite directions can
// never deadlock.
func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

// A failed rollback leaves the database to resolve the transaction on its
// own; it must be visible in the logs, never swallowed.
func rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log := logging.FromContext(ctx)
		log.Error("transaction rollback failed", "error", err)
	}
}
