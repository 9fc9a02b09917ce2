// Package engine implements the balance-consistent transfer core: every
// balance mutation in the system happens here, inside a single database
// transaction, with row locks taken in a fixed global order and a versioned
// compare-and-set guarding each write.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/fees"
	"github.com/instapay/instapay-backend/internal/repository"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByRoutingKey(ctx context.Context, key string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, txn *domain.Transaction) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByVoucherOrID(ctx context.Context, ref string) (*domain.Transaction, error)
}

type idempotencyRepo interface {
	Begin(ctx context.Context, key, requestHash string) (bool, *repository.OperationRecord, error)
	MarkCompleted(ctx context.Context, tx *sql.Tx, key string, transactionID uuid.UUID) error
	MarkFailed(ctx context.Context, key, reason string) error
}

type Engine struct {
	accounts    accountRepo
	ledger      ledgerRepo
	idempotency idempotencyRepo
	fees        *fees.Calculator
	db          *sql.DB
	maxRetries  int
}

func New(
	accounts accountRepo,
	ledger ledgerRepo,
	idempotency idempotencyRepo,
	feeCalc *fees.Calculator,
	db *sql.DB,
	maxRetries int,
) *Engine {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Engine{
		accounts:    accounts,
		ledger:      ledger,
		idempotency: idempotency,
		fees:        feeCalc,
		db:          db,
		maxRetries:  maxRetries,
	}
}

// History returns the account's completed movements, newest first.
func (e *Engine) History(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := e.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("History: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("History: %w", err)
	}

	txns, err := e.ledger.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return txns, nil
}

// Lookup finds a single record by transaction id or voucher number.
func (e *Engine) Lookup(ctx context.Context, ref string) (*domain.Transaction, error) {
	txn, err := e.ledger.GetByVoucherOrID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	return txn, nil
}

// Amounts are fixed at two decimal places; anything finer, zero, or negative
// is rejected before any account is touched.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.ErrInvalidAmount
	}
	return nil
}

func verifyAccountActive(acct *domain.Account, role string) error {
	if acct.Status != domain.AccountStatusActive {
		return fmt.Errorf("%s: %w", role, domain.ErrAccountDeactivated)
	}
	return nil
}
