// Package account covers the account lifecycle around the engine: opening at
// registration with the configured starting balance, lookup, and
// deactivation. Balances are never touched here.
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/logging"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AccountStatus) error
}

type Service struct {
	accounts        accountRepo
	startingBalance decimal.Decimal
}

func NewService(accounts accountRepo, startingBalance decimal.Decimal) *Service {
	return &Service{accounts: accounts, startingBalance: startingBalance}
}

type OpenRequest struct {
	HolderName string
	Email      string
	CellNumber string
}

func (r OpenRequest) validate() error {
	if strings.TrimSpace(r.HolderName) == "" ||
		strings.TrimSpace(r.Email) == "" ||
		strings.TrimSpace(r.CellNumber) == "" {
		return fmt.Errorf("holder name, email and cell number are required: %w", domain.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) Open(ctx context.Context, req OpenRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	now := time.Now().UTC()
	acct := &domain.Account{
		ID:         uuid.New(),
		HolderName: strings.TrimSpace(req.HolderName),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		CellNumber: strings.TrimSpace(req.CellNumber),
		Balance:    s.startingBalance,
		Version:    1,
		Status:     domain.AccountStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	log.Info("account opened",
		"account_id", acct.ID,
		"cell_number", acct.CellNumber,
		"starting_balance", acct.Balance,
	)

	return acct, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return acct, nil
}

// Deactivate soft-deletes the account. Rows referenced by ledger records are
// never removed.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.accounts.UpdateStatus(ctx, id, domain.AccountStatusDeactivated); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}

	log := logging.FromContext(ctx)
	log.Info("account deactivated", "account_id", id)
	return nil
}
