package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/pkg/logger"
)

type memStore struct {
	mu     sync.Mutex
	events []order.Event
	txs    []account.Transaction
	fail   bool
}

func (s *memStore) SaveOrderEvent(ctx context.Context, e order.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memStore) SaveTransaction(ctx context.Context, tx account.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.txs = append(s.txs, tx)
	return nil
}

func TestRecorder_WritesInOrder(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 16, logger.Nop())
	r.Start()

	r.OnOrderEvent(order.Event{Type: order.EventSubmitted, OrderID: "a"})
	r.OnOrderEvent(order.Event{Type: order.EventAccepted, OrderID: "a"})
	r.OnTransaction(account.Transaction{ID: "tx1", Amount: decimal.NewFromInt(5)})
	r.Stop()

	require.Len(t, store.events, 2)
	assert.Equal(t, order.EventSubmitted, store.events[0].Type)
	assert.Equal(t, order.EventAccepted, store.events[1].Type)
	require.Len(t, store.txs, 1)
	assert.Equal(t, "tx1", store.txs[0].ID)
	assert.Equal(t, RecorderStats{Written: 3}, r.Stats())
}

func TestRecorder_CountsFailuresAndDrops(t *testing.T) {
	store := &memStore{fail: true}
	r := NewRecorder(store, 1, logger.Nop())

	// not started: the second entry finds the buffer full
	r.OnOrderEvent(order.Event{OrderID: "a"})
	r.OnOrderEvent(order.Event{OrderID: "b"})
	assert.EqualValues(t, 1, r.Stats().Dropped)

	r.Start()
	r.Stop()
	r.Stop()

	assert.EqualValues(t, 1, r.Stats().Failed)

	r.OnTransaction(account.Transaction{ID: "late"})
	assert.EqualValues(t, 2, r.Stats().Dropped)
}

func TestRecorder_WithAccount(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 16, logger.Nop())
	r.Start()

	acct := account.New("ACC-1", account.Profile{Username: "u"}, logger.Nop())
	acct.OnTransaction(r.OnTransaction)
	require.NoError(t, acct.Deposit(decimal.NewFromInt(100), ""))
	require.NoError(t, acct.Withdraw(decimal.NewFromInt(40), ""))
	r.Stop()

	require.Len(t, store.txs, 2)
	assert.Equal(t, account.TxDeposit, store.txs[0].Type)
	assert.True(t, store.txs[1].Amount.Equal(decimal.NewFromInt(-40)))
	assert.True(t, store.txs[1].BalanceAfter.Equal(decimal.NewFromInt(60)))
}
