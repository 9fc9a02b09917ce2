package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/instapay/instapay-backend/internal/domain"
)

const transactionColumns = `id, voucher_number, sender_account_id, receiver_account_id,
	kind, amount, commission, vat, total_amount, status,
	receiver_name, receiver_id_document, receiver_address, created_at`

// TransactionRepository is the append-only ledger. There is deliberately no
// update or delete: records are the audit trail, and the transactions table
// carries a trigger that rejects both at the database level.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a record inside the engine's transaction so that the record
// and the balance mutations it describes commit or roll back together.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, txn *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, voucher_number, sender_account_id, receiver_account_id,
			kind, amount, commission, vat, total_amount, status,
			receiver_name, receiver_id_document, receiver_address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		txn.ID, txn.VoucherNumber, txn.SenderAccountID, txn.ReceiverAccountID,
		txn.Kind, txn.Amount, txn.Commission, txn.VAT, txn.TotalAmount, txn.Status,
		txn.ReceiverName, txn.ReceiverIDDocument, txn.ReceiverAddress, txn.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "transactions_voucher_number_key" {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateVoucher)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ListByAccount returns every record the account appears on, as sender or
// receiver, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE sender_account_id = $1 OR receiver_account_id = $1
		ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: scan: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByAccount: rows: %w", err)
	}
	return txns, nil
}

// GetByVoucherOrID looks a record up by its transaction id or, for
// withdrawals, the voucher number handed to the counterparty.
func (r *TransactionRepository) GetByVoucherOrID(ctx context.Context, ref string) (*domain.Transaction, error) {
	var row *sql.Row
	if id, err := uuid.Parse(ref); err == nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
		)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE voucher_number = $1`, ref,
		)
	}

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByVoucherOrID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByVoucherOrID: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return txn, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := s.Scan(
		&txn.ID, &txn.VoucherNumber, &txn.SenderAccountID, &txn.ReceiverAccountID,
		&txn.Kind, &txn.Amount, &txn.Commission, &txn.VAT, &txn.TotalAmount, &txn.Status,
		&txn.ReceiverName, &txn.ReceiverIDDocument, &txn.ReceiverAddress, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
