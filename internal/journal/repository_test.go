package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradedesk/internal/account"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/pkg/config"
	"github.com/wonny/tradedesk/pkg/database"
	"github.com/wonny/tradedesk/pkg/logger"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	cfg := &config.Config{Database: config.DatabaseConfig{
		URL:      os.Getenv("DATABASE_URL"),
		MaxConns: 2,
		MinConns: 1,
	}}
	db, err := database.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewRepository(db.Pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestRepository_OrderHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	o := order.New("AAPL", order.SideBuy, order.TypeLimit, decimal.NewFromInt(100), decimal.NewFromInt(180))
	require.NoError(t, repo.SaveOrderEvent(ctx, order.Event{
		Type: order.EventSubmitted, OrderID: o.ID, Order: *o, Timestamp: time.Now(),
	}))
	require.NoError(t, repo.SaveOrderEvent(ctx, order.Event{
		Type: order.EventFilled, OrderID: o.ID, Order: *o, Timestamp: time.Now(),
		FillQty: decimal.NewFromInt(100), FillPrice: decimal.NewFromInt(180),
	}))

	history, err := repo.OrderHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, order.EventSubmitted, history[0].EventType)
	assert.True(t, history[0].FillQty.IsZero())
	assert.True(t, history[1].FillPrice.Equal(decimal.NewFromInt(180)))
}

func TestRepository_Transactions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	accountID := "TEST-" + uuid.NewString()

	acct := account.New(accountID, account.Profile{}, logger.Nop())
	acct.OnTransaction(func(tx account.Transaction) {
		require.NoError(t, repo.SaveTransaction(ctx, tx))
		require.NoError(t, repo.SaveTransaction(ctx, tx))
	})
	require.NoError(t, acct.Deposit(decimal.RequireFromString("1000.50"), ""))
	require.NoError(t, acct.Withdraw(decimal.NewFromInt(500), ""))

	txs, err := repo.Transactions(ctx, accountID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, txs[1].BalanceAfter.Equal(decimal.RequireFromString("500.50")))
}
