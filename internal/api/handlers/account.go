package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/pkg/logger"
)

const defaultTransactionLimit = 50

// Withdrawer debits cash that open orders are not holding
type Withdrawer interface {
	Withdraw(amount decimal.Decimal, description string) error
}

// AccountHandler serves the cash ledger and positions
type AccountHandler struct {
	account *account.Account
	cash    Withdrawer
	logger  *logger.Logger
}

// NewAccountHandler creates a new account handler. Withdrawals go through cash.
func NewAccountHandler(acc *account.Account, cash Withdrawer, log *logger.Logger) *AccountHandler {
	return &AccountHandler{
		account: acc,
		cash:    cash,
		logger:  log,
	}
}

// CashRequest is the body of deposit and withdraw calls
type CashRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// GetSummary returns the account figures
// GET /api/account
func (h *AccountHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.account.Summary())
}

// GetPositions returns open positions with derived figures
// GET /api/account/positions
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.account.Positions()
	views := make([]account.PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, p.View())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"positions": views,
		"count":     len(views),
	})
}

// GetTransactions returns the most recent ledger entries
// GET /api/account/transactions?limit=50
func (h *AccountHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTransactionLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs := h.account.RecentTransactions(limit)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Deposit credits cash
// POST /api/account/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Description == "" {
		req.Description = "Deposit"
	}

	if err := h.account.Deposit(req.Amount, req.Description); err != nil {
		h.respondCashError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.account.Summary())
}

// Withdraw debits cash
// POST /api/account/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Description == "" {
		req.Description = "Withdrawal"
	}

	if err := h.cash.Withdraw(req.Amount, req.Description); err != nil {
		h.respondCashError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.account.Summary())
}

func (h *AccountHandler) respondCashError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.WithError(err).Error("Cash operation failed")
		respondError(w, http.StatusInternalServerError, "cash operation failed")
	}
}
