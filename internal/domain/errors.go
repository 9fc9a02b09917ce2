package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrReceiverNotFound    = errors.New("receiver not found")
	ErrAccountExists       = errors.New("account already exists for this email or cell number")
	ErrAccountDeactivated  = errors.New("account deactivated")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be a positive value with at most two decimal places")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrSelfTransfer        = errors.New("cannot transfer to own account")
	ErrVersionConflict     = errors.New("optimistic lock conflict")
	ErrContention          = errors.New("transfer failed: contention")
	ErrOperationInProgress = errors.New("operation with this idempotency key is in progress")
	ErrOperationFailed     = errors.New("operation with this idempotency key previously failed")
	ErrIdempotencyMismatch = errors.New("idempotency key already used with a different request")
	ErrDuplicateVoucher    = errors.New("duplicate voucher number")
)
