package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/instapay/instapay-backend/internal/domain"
	"github.com/instapay/instapay-backend/internal/engine"
)

// The adapter trusts the caller-supplied account id: authentication and
// authorization happen upstream of this service.
type transferEngine interface {
	Send(ctx context.Context, req engine.SendRequest) (*domain.Transaction, error)
	Withdraw(ctx context.Context, req engine.WithdrawRequest) (*domain.Transaction, error)
	History(ctx context.Context, accountID uuid.UUID) ([]domain.Transaction, error)
	Lookup(ctx context.Context, ref string) (*domain.Transaction, error)
}

type TransactionHandler struct {
	engine transferEngine
}

func NewTransactionHandler(eng transferEngine) *TransactionHandler {
	return &TransactionHandler{engine: eng}
}

type transactionResponse struct {
	ID                 uuid.UUID `json:"id"`
	VoucherNumber      *string   `json:"voucher_number,omitempty"`
	SenderAccountID    uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID  uuid.UUID `json:"receiver_account_id"`
	Kind               string    `json:"kind"`
	Amount             string    `json:"amount"`
	Commission         string    `json:"commission"`
	VAT                string    `json:"vat"`
	TotalAmount        string    `json:"total_amount"`
	Status             string    `json:"status"`
	ReceiverName       *string   `json:"receiver_name,omitempty"`
	ReceiverIDDocument *string   `json:"receiver_id_document,omitempty"`
	ReceiverAddress    *string   `json:"receiver_address,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func toTransactionResponse(txn *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 txn.ID,
		VoucherNumber:      txn.VoucherNumber,
		SenderAccountID:    txn.SenderAccountID,
		ReceiverAccountID:  txn.ReceiverAccountID,
		Kind:               string(txn.Kind),
		Amount:             txn.Amount.StringFixed(2),
		Commission:         txn.Commission.StringFixed(2),
		VAT:                txn.VAT.StringFixed(2),
		TotalAmount:        txn.TotalAmount.StringFixed(2),
		Status:             string(txn.Status),
		ReceiverName:       txn.ReceiverName,
		ReceiverIDDocument: txn.ReceiverIDDocument,
		ReceiverAddress:    txn.ReceiverAddress,
		CreatedAt:          txn.CreatedAt,
	}
}

type createTransferRequest struct {
	SenderAccountID string `json:"sender_account_id"`
	Receiver        string `json:"receiver"`
	Amount          string `json:"amount"`
}

func (r createTransferRequest) validate() ([]FieldError, uuid.UUID, decimal.Decimal) {
	var errs []FieldError

	senderID, err := uuid.Parse(r.SenderAccountID)
	if err != nil {
		errs = append(errs, FieldError{Field: "sender_account_id", Message: "must be a valid account id"})
	}

	if r.Receiver == "" {
		errs = append(errs, FieldError{Field: "receiver", Message: "required"})
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: "must be a decimal number"})
	}

	return errs, senderID, amount
}

func (h *TransactionHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	fieldErrs, senderID, amount := req.validate()
	if len(fieldErrs) > 0 {
		RespondValidationError(w, fieldErrs)
		return
	}

	txn, err := h.engine.Send(r.Context(), engine.SendRequest{
		SenderAccountID:    senderID,
		ReceiverRoutingKey: req.Receiver,
		Amount:             amount,
		IdempotencyKey:     r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionResponse(txn))
}

type createWithdrawalRequest struct {
	AccountID          string  `json:"account_id"`
	Amount             string  `json:"amount"`
	Full               bool    `json:"full"`
	ReceiverName       *string `json:"receiver_name,omitempty"`
	ReceiverIDDocument *string `json:"receiver_id_document,omitempty"`
	ReceiverAddress    *string `json:"receiver_address,omitempty"`
}

func (h *TransactionHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fieldErrs []FieldError
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		fieldErrs = append(fieldErrs, FieldError{Field: "account_id", Message: "must be a valid account id"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		fieldErrs = append(fieldErrs, FieldError{Field: "amount", Message: "must be a decimal number"})
	}
	if len(fieldErrs) > 0 {
		RespondValidationError(w, fieldErrs)
		return
	}

	txn, err := h.engine.Withdraw(r.Context(), engine.WithdrawRequest{
		AccountID:          accountID,
		Amount:             amount,
		Full:               req.Full,
		IdempotencyKey:     r.Header.Get("Idempotency-Key"),
		ReceiverName:       req.ReceiverName,
		ReceiverIDDocument: req.ReceiverIDDocument,
		ReceiverAddress:    req.ReceiverAddress,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a valid account id"}})
		return
	}

	txns, err := h.engine.History(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, toTransactionResponse(&txns[i]))
	}
	RespondSuccess(w, http.StatusOK, out)
}

func (h *TransactionHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	if ref == "" {
		RespondValidationError(w, []FieldError{{Field: "ref", Message: "required"}})
		return
	}

	txn, err := h.engine.Lookup(r.Context(), ref)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionResponse(txn))
}
