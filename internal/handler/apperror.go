package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a positive value with at most two decimal places"}
	ErrInsufficientFunds   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrSelfTransfer        = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to your own account"}
	ErrAccountNotFound     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrReceiverNotFound    = &AppError{http.StatusUnprocessableEntity, "RECEIVER_NOT_FOUND", "Receiver not found"}
	ErrAccountDeactivated  = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_DEACTIVATED", "Account is deactivated"}
	ErrAccountExists       = &AppError{http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", "Account already exists for this email or cell number"}
	ErrContention          = &AppError{http.StatusConflict, "CONTENTION", "Operation could not complete due to concurrent activity, please retry"}
	ErrOperationInProgress = &AppError{http.StatusConflict, "OPERATION_IN_PROGRESS", "An operation with this idempotency key is already in progress"}
	ErrOperationFailed     = &AppError{http.StatusUnprocessableEntity, "OPERATION_FAILED", "An operation with this idempotency key previously failed"}
	ErrIdempotencyConflict = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
