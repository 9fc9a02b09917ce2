package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/instapay/instapay-backend/internal/account"
	"github.com/instapay/instapay-backend/internal/domain"
)

type accountService interface {
	Open(ctx context.Context, req account.OpenRequest) (*domain.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type accountResponse struct {
	ID         uuid.UUID `json:"id"`
	HolderName string    `json:"holder_name"`
	Email      string    `json:"email"`
	CellNumber string    `json:"cell_number"`
	Balance    string    `json:"balance"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		HolderName: a.HolderName,
		Email:      a.Email,
		CellNumber: a.CellNumber,
		Balance:    a.Balance.StringFixed(2),
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
	}
}

type openAccountRequest struct {
	HolderName string `json:"holder_name"`
	Email      string `json:"email"`
	CellNumber string `json:"cell_number"`
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	acct, err := h.accounts.Open(r.Context(), account.OpenRequest{
		HolderName: req.HolderName,
		Email:      req.Email,
		CellNumber: req.CellNumber,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountResponse(acct))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a valid account id"}})
		return
	}

	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountResponse(acct))
}

func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a valid account id"}})
		return
	}

	if err := h.accounts.Deactivate(r.Context(), id); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": string(domain.AccountStatusDeactivated)})
}
