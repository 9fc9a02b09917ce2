package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindTransfer          TransactionKind = "transfer"
	TransactionKindFullWithdrawal    TransactionKind = "full_withdrawal"
	TransactionKindPartialWithdrawal TransactionKind = "partial_withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
)

// Transaction is one immutable ledger record of a completed money movement.
// For transfers TotalAmount = Amount + Commission + VAT; for withdrawals the
// sender and receiver are the same account and Commission = VAT = 0.
//
// Records are append-only: the repository exposes no update or delete, and the
// transactions table carries a trigger rejecting both.
type Transaction struct {
	ID                uuid.UUID
	VoucherNumber     *string
	SenderAccountID   uuid.UUID
	ReceiverAccountID uuid.UUID
	Kind              TransactionKind
	Amount            decimal.Decimal
	Commission        decimal.Decimal
	VAT               decimal.Decimal
	TotalAmount       decimal.Decimal
	Status            TransactionStatus

	// Counterparty details captured at withdrawal time, kept for audit and
	// reconciliation even if the account record later changes.
	ReceiverName       *string
	ReceiverIDDocument *string
	ReceiverAddress    *string

	CreatedAt time.Time
}
