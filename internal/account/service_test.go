package account_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instapay/instapay-backend/internal/account"
	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/repository"
	"github.com/instapay/instapay-backend/internal/testutil"
)

func TestOpenAndDeactivate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := account.NewService(repository.NewAccountRepository(db), decimal.RequireFromString("1000.00"))
	ctx := context.Background()

	acct, err := svc.Open(ctx, account.OpenRequest{
		HolderName: "Thandiwe Dlamini",
		Email:      "Thandiwe@Example.com",
		CellNumber: "+27821234567",
	})
	require.NoError(t, err)

	assert.Equal(t, "thandiwe@example.com", acct.Email, "email is normalised")
	assert.Equal(t, domain.AccountStatusActive, acct.Status)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("1000.00")),
		"new accounts start at the configured balance, got %s", acct.Balance)

	// Same email (different case) must be rejected.
	_, err = svc.Open(ctx, account.OpenRequest{
		HolderName: "Impostor",
		Email:      "thandiwe@example.com",
		CellNumber: "+27829999999",
	})
	require.ErrorIs(t, err, domain.ErrAccountExists)

	require.NoError(t, svc.Deactivate(ctx, acct.ID))

	got, err := svc.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusDeactivated, got.Status)
}

func TestOpenValidation(t *testing.T) {
	svc := account.NewService(nil, decimal.RequireFromString("1000.00"))

	_, err := svc.Open(context.Background(), account.OpenRequest{
		HolderName: " ",
		Email:      "a@b.c",
		CellNumber: "+27820000000",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
