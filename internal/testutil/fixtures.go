package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instapay/instapay-backend/internal/domain"
)

var seedSeq int

// SeedAccount inserts an active account with the given balance. Email and
// cell number are derived from the holder name, which must be unique within a
// test database.
func SeedAccount(t *testing.T, db *sql.DB, holderName, balance string) *domain.Account {
	t.Helper()

	bal, err := decimal.NewFromString(balance)
	if err != nil {
		t.Fatalf("parse balance %q: %v", balance, err)
	}

	seedSeq++
	now := time.Now().UTC()
	a := &domain.Account{
		ID:         uuid.New(),
		HolderName: holderName,
		Email:      fmt.Sprintf("%s@test.local", holderName),
		CellNumber: fmt.Sprintf("+2782%07d", seedSeq),
		Balance:    bal,
		Version:    1,
		Status:     domain.AccountStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = db.Exec(
		`INSERT INTO accounts (id, holder_name, email, cell_number, balance, version, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.HolderName, a.Email, a.CellNumber, a.Balance, a.Version, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", holderName, err)
	}
	return a
}

func GetBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance %s: %v", accountID, err)
	}
	return balance
}

func CountTransactions(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE sender_account_id = $1 OR receiver_account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for %s: %v", accountID, err)
	}
	return count
}
