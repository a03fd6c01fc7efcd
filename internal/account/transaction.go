package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxTrade      TransactionType = "TRADE"
	TxDividend   TransactionType = "DIVIDEND"
	TxInterest   TransactionType = "INTEREST"
	TxFee        TransactionType = "FEE"
)

// ParseTransactionType converts a wire string into a TransactionType
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TxDeposit, TxWithdrawal, TxTrade, TxDividend, TxInterest, TxFee:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Transaction is an append-only ledger entry. Amount is signed: credits are
// positive and debits negative.
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Timestamp    time.Time       `json:"timestamp"`
}

func newTransaction(accountID string, typ TransactionType, amount decimal.Decimal, desc string, balance decimal.Decimal) Transaction {
	return Transaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         typ,
		Amount:       amount,
		Description:  desc,
		BalanceAfter: balance,
		Timestamp:    time.Now(),
	}
}
