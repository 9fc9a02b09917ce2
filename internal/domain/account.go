package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "active"
	AccountStatusDeactivated AccountStatus = "deactivated"
)

// Account is the single source of truth for a holder's funds. Balance is only
// ever mutated by the transfer engine, through the account repository's
// versioned compare-and-set. Accounts referenced by ledger records are never
// deleted, only deactivated.
type Account struct {
	ID         uuid.UUID
	HolderName string
	Email      string
	CellNumber string
	Balance    decimal.Decimal
	Version    int64
	Status     AccountStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
