package engine_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/engine"
	"github.com/instapay/instapay-backend/internal/fees"
	"github.com/instapay/instapay-backend/internal/repository"
	"github.com/instapay/instapay-backend/internal/testutil"
)

func setupEngine(t *testing.T, db *sql.DB) *engine.Engine {
	t.Helper()
	return engine.New(
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewIdempotencyRepository(db),
		fees.NewCalculator(dec(t, "0.05"), dec(t, "0.15")),
		db,
		3,
	)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func assertDecimalEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)),
		"got %s, want %s: %v", got, want, msgAndArgs)
}

func TestSend_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "thandi", "1000.00")
	receiver := testutil.SeedAccount(t, db, "sipho", "200.00")

	txn, err := eng.Send(ctx, engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "100.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionKindTransfer, txn.Kind)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, sender.ID, txn.SenderAccountID)
	assert.Equal(t, receiver.ID, txn.ReceiverAccountID)
	assertDecimalEqual(t, "100.00", txn.Amount)
	assertDecimalEqual(t, "5.00", txn.Commission)
	assertDecimalEqual(t, "0.75", txn.VAT)
	assertDecimalEqual(t, "105.75", txn.TotalAmount)

	assertDecimalEqual(t, "894.25", testutil.GetBalance(t, db, sender.ID))
	assertDecimalEqual(t, "300.00", testutil.GetBalance(t, db, receiver.ID))

	assert.Equal(t, 1, testutil.CountTransactions(t, db, sender.ID))
}

func TestSend_Conservation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "lindiwe", "500.00")
	receiver := testutil.SeedAccount(t, db, "bongani", "500.00")

	txn, err := eng.Send(ctx, engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.Email,
		Amount:             dec(t, "33.33"),
	})
	require.NoError(t, err)

	senderAfter := testutil.GetBalance(t, db, sender.ID)
	receiverAfter := testutil.GetBalance(t, db, receiver.ID)

	// Sender lost exactly gross + commission + VAT, receiver gained exactly
	// the gross amount, and the system as a whole shrank by the fees.
	debited := sender.Balance.Sub(senderAfter)
	credited := receiverAfter.Sub(receiver.Balance)
	assert.True(t, debited.Equal(txn.Amount.Add(txn.Commission).Add(txn.VAT)),
		"debited %s != amount+commission+vat", debited)
	assert.True(t, credited.Equal(txn.Amount), "credited %s != amount %s", credited, txn.Amount)

	totalBefore := sender.Balance.Add(receiver.Balance)
	totalAfter := senderAfter.Add(receiverAfter)
	feeTotal := txn.Commission.Add(txn.VAT)
	assert.True(t, totalBefore.Sub(totalAfter).Equal(feeTotal),
		"system balance shrank by %s, want %s", totalBefore.Sub(totalAfter), feeTotal)
}

func TestSend_InsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	// 100.00 gross costs 105.75 all-in; a 100.00 balance cannot cover it.
	sender := testutil.SeedAccount(t, db, "nomsa", "100.00")
	receiver := testutil.SeedAccount(t, db, "mandla", "0.00")

	_, err := eng.Send(ctx, engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "100.00"),
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertDecimalEqual(t, "100.00", testutil.GetBalance(t, db, sender.ID))
	assertDecimalEqual(t, "0.00", testutil.GetBalance(t, db, receiver.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, sender.ID))
}

func TestSend_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "zanele", "1000.00")

	t.Run("zero amount", func(t *testing.T) {
		_, err := eng.Send(ctx, engine.SendRequest{
			SenderAccountID:    sender.ID,
			ReceiverRoutingKey: "whoever",
			Amount:             decimal.Zero,
		})
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("unknown sender", func(t *testing.T) {
		_, err := eng.Send(ctx, engine.SendRequest{
			SenderAccountID:    uuid.New(),
			ReceiverRoutingKey: sender.CellNumber,
			Amount:             dec(t, "10.00"),
		})
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("unknown receiver", func(t *testing.T) {
		_, err := eng.Send(ctx, engine.SendRequest{
			SenderAccountID:    sender.ID,
			ReceiverRoutingKey: "nobody@test.local",
			Amount:             dec(t, "10.00"),
		})
		require.ErrorIs(t, err, domain.ErrReceiverNotFound)
	})

	t.Run("self transfer by own routing key", func(t *testing.T) {
		_, err := eng.Send(ctx, engine.SendRequest{
			SenderAccountID:    sender.ID,
			ReceiverRoutingKey: sender.Email,
			Amount:             dec(t, "10.00"),
		})
		require.ErrorIs(t, err, domain.ErrSelfTransfer)
	})

	assert.Equal(t, 0, testutil.CountTransactions(t, db, sender.ID))
	assertDecimalEqual(t, "1000.00", testutil.GetBalance(t, db, sender.ID))
}

func TestSend_DeactivatedReceiver(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "ayanda", "1000.00")
	receiver := testutil.SeedAccount(t, db, "thabo", "100.00")

	repo := repository.NewAccountRepository(db)
	require.NoError(t, repo.UpdateStatus(ctx, receiver.ID, domain.AccountStatusDeactivated))

	_, err := eng.Send(ctx, engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "10.00"),
	})

	require.ErrorIs(t, err, domain.ErrAccountDeactivated)
	assertDecimalEqual(t, "1000.00", testutil.GetBalance(t, db, sender.ID))
}

func TestSend_ConcurrentOverdraft(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	// Balance covers exactly one all-in debit of 105.75.
	sender := testutil.SeedAccount(t, db, "precious", "105.75")
	receiver := testutil.SeedAccount(t, db, "tumi", "0.00")

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Send(ctx, engine.SendRequest{
				SenderAccountID:    sender.ID,
				ReceiverRoutingKey: receiver.CellNumber,
				Amount:             dec(t, "100.00"),
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		}
	}

	assert.Equal(t, 1, successes, "exactly one transfer should succeed")
	assert.Equal(t, 1, failures, "exactly one transfer should fail")

	assertDecimalEqual(t, "0.00", testutil.GetBalance(t, db, sender.ID))
	assertDecimalEqual(t, "100.00", testutil.GetBalance(t, db, receiver.ID))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, receiver.ID))
}

func TestSend_ConcurrentFanOut(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	// 5 concurrent transfers of 100.00 (105.75 all-in) against 350.00:
	// floor(350.00/105.75) = 3 must succeed.
	sender := testutil.SeedAccount(t, db, "karabo", "350.00")
	receiver := testutil.SeedAccount(t, db, "lerato", "0.00")

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Send(ctx, engine.SendRequest{
				SenderAccountID:    sender.ID,
				ReceiverRoutingKey: receiver.Email,
				Amount:             dec(t, "100.00"),
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}
	}

	assert.Equal(t, 3, successes)
	assertDecimalEqual(t, "32.75", testutil.GetBalance(t, db, sender.ID))
	assertDecimalEqual(t, "300.00", testutil.GetBalance(t, db, receiver.ID))
	assert.False(t, testutil.GetBalance(t, db, sender.ID).IsNegative(), "no overdraft")
}

func TestWithdraw_Partial(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "musa", "1000.00")
	name := "Walk-in Counterparty"
	doc := "8001015009087"

	txn, err := eng.Withdraw(ctx, engine.WithdrawRequest{
		AccountID:          acct.ID,
		Amount:             dec(t, "250.00"),
		Full:               false,
		ReceiverName:       &name,
		ReceiverIDDocument: &doc,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionKindPartialWithdrawal, txn.Kind)
	assert.Equal(t, acct.ID, txn.SenderAccountID)
	assert.Equal(t, acct.ID, txn.ReceiverAccountID)
	assertDecimalEqual(t, "250.00", txn.Amount)
	assertDecimalEqual(t, "0.00", txn.Commission)
	assertDecimalEqual(t, "0.00", txn.VAT)
	assertDecimalEqual(t, "250.00", txn.TotalAmount)
	require.NotNil(t, txn.VoucherNumber)
	require.NotNil(t, txn.ReceiverName)
	assert.Equal(t, name, *txn.ReceiverName)

	assertDecimalEqual(t, "750.00", testutil.GetBalance(t, db, acct.ID))

	// The voucher handed out must resolve back to the record.
	found, err := eng.Lookup(ctx, *txn.VoucherNumber)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, found.ID)
}

func TestWithdraw_Full(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "vusi", "300.00")

	txn, err := eng.Withdraw(ctx, engine.WithdrawRequest{
		AccountID: acct.ID,
		Amount:    dec(t, "300.00"),
		Full:      true,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.TransactionKindFullWithdrawal, txn.Kind)
	assertDecimalEqual(t, "0.00", testutil.GetBalance(t, db, acct.ID))
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "naledi", "50.00")

	_, err := eng.Withdraw(ctx, engine.WithdrawRequest{
		AccountID: acct.ID,
		Amount:    dec(t, "100.00"),
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertDecimalEqual(t, "50.00", testutil.GetBalance(t, db, acct.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, acct.ID))
}

func TestIdempotency_ReplayReturnsSameRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "refilwe", "1000.00")
	receiver := testutil.SeedAccount(t, db, "kagiso", "0.00")

	req := engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "100.00"),
		IdempotencyKey:     uuid.NewString(),
	}

	first, err := eng.Send(ctx, req)
	require.NoError(t, err)

	second, err := eng.Send(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "replay must return the original record")
	assertDecimalEqual(t, "894.25", testutil.GetBalance(t, db, sender.ID), "only one debit applied")
	assertDecimalEqual(t, "100.00", testutil.GetBalance(t, db, receiver.ID))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, sender.ID))
}

func TestIdempotency_KeyReuseWithDifferentPayload(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "dineo", "1000.00")
	receiver := testutil.SeedAccount(t, db, "tebogo", "0.00")

	key := uuid.NewString()

	_, err := eng.Send(ctx, engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "10.00"),
		IdempotencyKey:     key,
	})
	require.NoError(t, err)

	_, err = eng.Send(ctx, engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "20.00"),
		IdempotencyKey:     key,
	})
	require.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
	assert.Equal(t, 1, testutil.CountTransactions(t, db, sender.ID))
}

func TestIdempotency_WithdrawalCounterpartyChangeRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "karabo", "500.00")
	key := uuid.NewString()

	name := "Karabo Nkosi"
	_, err := eng.Withdraw(ctx, engine.WithdrawRequest{
		AccountID:      acct.ID,
		Amount:         dec(t, "50.00"),
		IdempotencyKey: key,
		ReceiverName:   &name,
	})
	require.NoError(t, err)

	// Same key and amount, different counterparty: a distinct request, not a
	// replay.
	otherName := "Lindiwe Dlamini"
	_, err = eng.Withdraw(ctx, engine.WithdrawRequest{
		AccountID:      acct.ID,
		Amount:         dec(t, "50.00"),
		IdempotencyKey: key,
		ReceiverName:   &otherName,
	})
	require.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
	assert.Equal(t, 1, testutil.CountTransactions(t, db, acct.ID))
	assertDecimalEqual(t, "450.00", testutil.GetBalance(t, db, acct.ID))
}

func TestIdempotency_PendingKeyRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "itumeleng", "1000.00")
	receiver := testutil.SeedAccount(t, db, "palesa", "0.00")

	key := uuid.NewString()
	req := engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "10.00"),
		IdempotencyKey:     key,
	}

	// Claim the key as a still-running first attempt would.
	idem := repository.NewIdempotencyRepository(db)
	started, _, err := idem.Begin(ctx, key, sendRequestHash(t, req))
	require.NoError(t, err)
	require.True(t, started)

	_, err = eng.Send(ctx, req)
	require.ErrorIs(t, err, domain.ErrOperationInProgress)
	assertDecimalEqual(t, "1000.00", testutil.GetBalance(t, db, sender.ID))
}

func TestIdempotency_FailedOutcomeIsReplayed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	sender := testutil.SeedAccount(t, db, "lwazi", "10.00")
	receiver := testutil.SeedAccount(t, db, "buhle", "0.00")

	key := uuid.NewString()
	req := engine.SendRequest{
		SenderAccountID:    sender.ID,
		ReceiverRoutingKey: receiver.CellNumber,
		Amount:             dec(t, "100.00"),
		IdempotencyKey:     key,
	}

	_, err := eng.Send(ctx, req)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = eng.Send(ctx, req)
	require.ErrorIs(t, err, domain.ErrOperationFailed)
}

// sendRequestHash mirrors the engine's canonical hash for a send request so a
// test can pre-claim a key the way a concurrent first attempt would.
func sendRequestHash(t *testing.T, req engine.SendRequest) string {
	t.Helper()
	return engine.RequestHashForTest("send", req.SenderAccountID.String(), req.ReceiverRoutingKey, req.Amount.StringFixed(2))
}

func TestHistory_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "xolani", "1000.00")
	b := testutil.SeedAccount(t, db, "ntombi", "1000.00")

	_, err := eng.Send(ctx, engine.SendRequest{SenderAccountID: a.ID, ReceiverRoutingKey: b.CellNumber, Amount: dec(t, "10.00")})
	require.NoError(t, err)
	_, err = eng.Send(ctx, engine.SendRequest{SenderAccountID: b.ID, ReceiverRoutingKey: a.CellNumber, Amount: dec(t, "20.00")})
	require.NoError(t, err)
	last, err := eng.Withdraw(ctx, engine.WithdrawRequest{AccountID: a.ID, Amount: dec(t, "5.00")})
	require.NoError(t, err)

	history, err := eng.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 3, "incoming and outgoing movements both appear")

	assert.Equal(t, last.ID, history[0].ID, "newest first")
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.After(history[i-1].CreatedAt),
			"history must be ordered newest first")
	}

	_, err = eng.History(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedger_Immutable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, db, "sbu", "1000.00")

	txn, err := eng.Withdraw(ctx, engine.WithdrawRequest{AccountID: acct.ID, Amount: dec(t, "10.00")})
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE transactions SET amount = 9999 WHERE id = $1`, txn.ID)
	require.Error(t, err, "updates to the ledger must be rejected")

	_, err = db.Exec(`DELETE FROM transactions WHERE id = $1`, txn.ID)
	require.Error(t, err, "deletes from the ledger must be rejected")
}
