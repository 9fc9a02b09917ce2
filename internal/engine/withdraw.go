package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/logging"
)

type WithdrawRequest struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Full           bool
	IdempotencyKey string

	// Optional counterparty details captured for the audit trail.
	ReceiverName       *string
	ReceiverIDDocument *string
	ReceiverAddress    *string
}

// Withdraw debits the account by Amount with no commission or VAT and appends
// a record with sender == receiver. Full only selects the record kind; the
// sufficiency check is the same either way.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (*domain.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	hash := requestHash("withdraw",
		req.AccountID.String(), req.Amount.StringFixed(2), fmt.Sprintf("%t", req.Full),
		deref(req.ReceiverName), deref(req.ReceiverIDDocument), deref(req.ReceiverAddress),
	)

	txn, err := e.withIdempotency(ctx, req.IdempotencyKey, hash, func(ctx context.Context) (*domain.Transaction, error) {
		return e.withRetry(ctx, func(ctx context.Context) (*domain.Transaction, error) {
			return e.executeWithdraw(ctx, req)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("Withdraw: %w", err)
	}

	log := logging.FromContext(ctx)
	log.Info("withdrawal completed",
		"transaction_id", txn.ID,
		"account", txn.SenderAccountID,
		"kind", txn.Kind,
		"amount", txn.Amount,
		"voucher_number", txn.VoucherNumber,
	)

	return txn, nil
}

func (e *Engine) executeWithdraw(ctx context.Context, req WithdrawRequest) (*domain.Transaction, error) {
	acct, err := e.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("executeWithdraw: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}

	if err := verifyAccountActive(acct, "account"); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}
	if acct.Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.ErrInsufficientFunds)
	}

	kind := domain.TransactionKindPartialWithdrawal
	if req.Full {
		kind = domain.TransactionKindFullWithdrawal
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeWithdraw: begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	acct, err = e.accounts.GetForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}

	if err := verifyAccountActive(acct, "account"); err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}
	if acct.Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("executeWithdraw: %w", domain.ErrInsufficientFunds)
	}

	voucher, err := newVoucherNumber()
	if err != nil {
		return nil, fmt.Errorf("executeWithdraw: %w", err)
	}

	txn := &domain.Transaction{
		ID:                 uuid.New(),
		VoucherNumber:      &voucher,
		SenderAccountID:    acct.ID,
		ReceiverAccountID:  acct.ID,
		Kind:               kind,
		Amount:             req.Amount,
		Commission:         decimal.Zero,
		VAT:                decimal.Zero,
		TotalAmount:        req.Amount,
		Status:             domain.TransactionStatusCompleted,
		ReceiverName:       req.ReceiverName,
		ReceiverIDDocument: req.ReceiverIDDocument,
		ReceiverAddress:    req.ReceiverAddress,
		CreatedAt:          time.Now().UTC(),
	}

	if err := e.ledger.Create(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("executeWithdraw: append record: %w", err)
	}

	if err := e.accounts.UpdateBalance(ctx, tx, acct.ID, acct.Balance.Sub(req.Amount), acct.Version+1); err != nil {
		return nil, fmt.Errorf("executeWithdraw: debit: %w", err)
	}

	if req.IdempotencyKey != "" {
		if err := e.idempotency.MarkCompleted(ctx, tx, req.IdempotencyKey, txn.ID); err != nil {
			return nil, fmt.Errorf("executeWithdraw: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeWithdraw: commit: %w", err)
	}

	return txn, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// newVoucherNumber draws a 12-digit reference the counterparty can redeem the
// withdrawal with. Uniqueness is enforced by the ledger's unique constraint.
func newVoucherNumber() (string, error) {
	limit := big.NewInt(1_000_000_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("newVoucherNumber: %w", err)
	}
	return fmt.Sprintf("%012d", n), nil
}
