package account

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/tradedesk/pkg/logger"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrNoPosition        = errors.New("no open position")
	ErrInvalidType       = errors.New("transaction type not allowed here")
)

// Profile identifies the account holder. It is supplied by the identity provider.
type Profile struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// TransactionListener is called for every appended ledger entry
type TransactionListener func(Transaction)

// Account is a cash ledger with weighted-average cost positions
type Account struct {
	ID        string
	Owner     Profile
	CreatedAt time.Time

	mu           sync.RWMutex
	cash         decimal.Decimal
	realizedPnL  decimal.Decimal
	positions    map[string]*Position
	transactions []Transaction

	lmu       sync.RWMutex
	listeners []TransactionListener

	logger *logger.Logger
}

// New creates an empty account. An empty id gets a generated one.
func New(id string, owner Profile, log *logger.Logger) *Account {
	if id == "" {
		id = uuid.NewString()
	}
	return &Account{
		ID:        id,
		Owner:     owner,
		CreatedAt: time.Now(),
		positions: make(map[string]*Position),
		logger:    log.WithComponent("account").WithField("account_id", id),
	}
}

// OnTransaction registers a listener for appended transactions
func (a *Account) OnTransaction(l TransactionListener) {
	a.lmu.Lock()
	a.listeners = append(a.listeners, l)
	a.lmu.Unlock()
}

func (a *Account) publish(tx Transaction) {
	a.lmu.RLock()
	list := a.listeners
	a.lmu.RUnlock()

	for _, l := range list {
		l(tx)
	}
}

// appendTx records a transaction; callers hold a.mu
func (a *Account) appendTx(typ TransactionType, amount decimal.Decimal, desc string) Transaction {
	tx := newTransaction(a.ID, typ, amount, desc, a.cash)
	a.transactions = append(a.transactions, tx)
	return tx
}

// Deposit credits cash
func (a *Account) Deposit(amount decimal.Decimal, desc string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if desc == "" {
		desc = "Deposit"
	}

	a.mu.Lock()
	a.cash = a.cash.Add(amount)
	tx := a.appendTx(TxDeposit, amount, desc)
	a.mu.Unlock()

	a.logger.WithFields(map[string]interface{}{"amount": amount.String(), "balance": tx.BalanceAfter.String()}).Info("Deposit")
	a.publish(tx)
	return nil
}

// Withdraw debits cash. The amount may not exceed the balance.
func (a *Account) Withdraw(amount decimal.Decimal, desc string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if desc == "" {
		desc = "Withdrawal"
	}

	a.mu.Lock()
	if amount.GreaterThan(a.cash) {
		a.mu.Unlock()
		a.logger.WithField("amount", amount.String()).Warn("Withdrawal exceeds balance")
		return ErrInsufficientFunds
	}
	a.cash = a.cash.Sub(amount)
	tx := a.appendTx(TxWithdrawal, amount.Neg(), desc)
	a.mu.Unlock()

	a.logger.WithFields(map[string]interface{}{"amount": amount.String(), "balance": tx.BalanceAfter.String()}).Info("Withdrawal")
	a.publish(tx)
	return nil
}

// ApplyCharge books a dividend, interest credit or fee. Fees are debited and
// may not exceed the balance.
func (a *Account) ApplyCharge(typ TransactionType, amount decimal.Decimal, desc string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	a.mu.Lock()
	var tx Transaction
	switch typ {
	case TxDividend, TxInterest:
		a.cash = a.cash.Add(amount)
		tx = a.appendTx(typ, amount, desc)
	case TxFee:
		if amount.GreaterThan(a.cash) {
			a.mu.Unlock()
			return ErrInsufficientFunds
		}
		a.cash = a.cash.Sub(amount)
		tx = a.appendTx(typ, amount.Neg(), desc)
	default:
		a.mu.Unlock()
		return ErrInvalidType
	}
	a.mu.Unlock()

	a.publish(tx)
	return nil
}

// AddPosition books a purchase: cash is debited by qty*price without a funds
// check and the position's average price is re-weighted.
func (a *Account) AddPosition(symbol string, qty, price decimal.Decimal) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}

	cost := qty.Mul(price)

	a.mu.Lock()
	if p, ok := a.positions[symbol]; ok {
		p.add(qty, price)
	} else {
		a.positions[symbol] = newPosition(symbol, qty, price)
	}
	a.cash = a.cash.Sub(cost)
	tx := a.appendTx(TxTrade, cost.Neg(), fmt.Sprintf("Buy %s shares of %s @ $%s", qty, symbol, price))
	a.mu.Unlock()

	a.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"qty":    qty.String(),
		"price":  price.String(),
	}).Info("Position added")
	a.publish(tx)
	return nil
}

// ReducePosition sells qty at the position's marked price and returns the
// realized PnL. Selling more than is held sells the whole position.
func (a *Account) ReducePosition(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}

	a.mu.Lock()
	p, ok := a.positions[symbol]
	if !ok {
		a.mu.Unlock()
		return decimal.Zero, ErrNoPosition
	}
	if qty.GreaterThan(p.Quantity) {
		qty = p.Quantity
	}

	salePrice := p.CurrentPrice
	proceeds := qty.Mul(salePrice)
	realized := proceeds.Sub(qty.Mul(p.AvgPrice))

	a.realizedPnL = a.realizedPnL.Add(realized)
	a.cash = a.cash.Add(proceeds)
	p.reduce(qty)
	if !p.Quantity.IsPositive() {
		delete(a.positions, symbol)
	}

	sign := ""
	if !realized.IsNegative() {
		sign = "+"
	}
	tx := a.appendTx(TxTrade, proceeds, fmt.Sprintf("Sell %s shares of %s @ $%s (P&L: %s%s)",
		qty, symbol, salePrice, sign, realized.StringFixed(2)))
	a.mu.Unlock()

	a.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"qty":      qty.String(),
		"price":    salePrice.String(),
		"realized": realized.StringFixed(2),
	}).Info("Position reduced")
	a.publish(tx)
	return realized, nil
}

// UpdatePositionPrice marks an open position to price. It reports whether a position was marked.
func (a *Account) UpdatePositionPrice(symbol string, price decimal.Decimal) bool {
	if !price.IsPositive() {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions[strings.ToUpper(symbol)]
	if !ok {
		return false
	}
	p.CurrentPrice = price
	return true
}

// CashBalance returns the cash balance
func (a *Account) CashBalance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

// BuyingPower is the cash available for purchases. There is no margin.
func (a *Account) BuyingPower() decimal.Decimal {
	return a.CashBalance()
}

// RealizedPnL returns the accumulated realized PnL
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.realizedPnL
}

// PortfolioValue sums market values of open positions
func (a *Account) PortfolioValue() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.portfolioValue()
}

func (a *Account) portfolioValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.positions {
		total = total.Add(p.MarketValue())
	}
	return total
}

func (a *Account) unrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}

// TotalValue is cash plus portfolio value
func (a *Account) TotalValue() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash.Add(a.portfolioValue())
}

// UnrealizedPnL sums unrealized PnL over open positions
func (a *Account) UnrealizedPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unrealizedPnL()
}

// TotalPnL is realized plus unrealized PnL
func (a *Account) TotalPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.realizedPnL.Add(a.unrealizedPnL())
}

// TotalDeposits sums every deposit
func (a *Account) TotalDeposits() decimal.Decimal {
	return a.sumAbs(TxDeposit)
}

// TotalWithdrawals sums every withdrawal as a positive amount
func (a *Account) TotalWithdrawals() decimal.Decimal {
	return a.sumAbs(TxWithdrawal)
}

func (a *Account) sumAbs(typ TransactionType) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()

	total := decimal.Zero
	for _, tx := range a.transactions {
		if tx.Type == typ {
			total = total.Add(tx.Amount.Abs())
		}
	}
	return total
}

// Position returns a snapshot of the open position for symbol
func (a *Account) Position(symbol string) (Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.positions[strings.ToUpper(symbol)]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// HasPosition reports whether symbol is held
func (a *Account) HasPosition(symbol string) bool {
	_, ok := a.Position(symbol)
	return ok
}

// Positions returns snapshots of all open positions sorted by symbol
func (a *Account) Positions() []Position {
	a.mu.RLock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Transactions returns a copy of the ledger, oldest first
func (a *Account) Transactions() []Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Transaction, len(a.transactions))
	copy(out, a.transactions)
	return out
}

// RecentTransactions returns up to n of the newest transactions, oldest first
func (a *Account) RecentTransactions(n int) []Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	start := len(a.transactions) - n
	if start < 0 {
		start = 0
	}
	out := make([]Transaction, len(a.transactions)-start)
	copy(out, a.transactions[start:])
	return out
}

// Summary is a consistent snapshot of the account figures
type Summary struct {
	AccountID        string          `json:"account_id"`
	Owner            Profile         `json:"owner"`
	Cash             decimal.Decimal `json:"cash"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	TotalValue       decimal.Decimal `json:"total_value"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	Positions        int             `json:"positions"`
	Transactions     int             `json:"transactions"`
}

// Summary returns every aggregate computed under one lock
func (a *Account) Summary() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Summary{
		AccountID:      a.ID,
		Owner:          a.Owner,
		Cash:           a.cash,
		BuyingPower:    a.cash,
		PortfolioValue: a.portfolioValue(),
		RealizedPnL:    a.realizedPnL,
		UnrealizedPnL:  a.unrealizedPnL(),
		Positions:      len(a.positions),
		Transactions:   len(a.transactions),
	}
	s.TotalValue = s.Cash.Add(s.PortfolioValue)
	s.TotalPnL = s.RealizedPnL.Add(s.UnrealizedPnL)

	for _, tx := range a.transactions {
		switch tx.Type {
		case TxDeposit:
			s.TotalDeposits = s.TotalDeposits.Add(tx.Amount.Abs())
		case TxWithdrawal:
			s.TotalWithdrawals = s.TotalWithdrawals.Add(tx.Amount.Abs())
		}
	}
	return s
}
