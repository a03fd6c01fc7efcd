package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/internal/scheduler"
	"github.com/wonny/tradedesk/pkg/logger"
)

type countingExpirer struct{ calls int }

func (c *countingExpirer) ExpireDayOrders() int {
	c.calls++
	return 3
}

func TestExpireDayOrdersJob(t *testing.T) {
	orders := &countingExpirer{}
	job := NewExpireDayOrdersJob(orders, "", logger.Nop())

	assert.Equal(t, "expire_day_orders", job.Name())
	assert.Equal(t, "0 0 16 * * 1-5", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, orders.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, job.Run(ctx))
	assert.Equal(t, 1, orders.calls)
}

func TestJobsRegisterWithScheduler(t *testing.T) {
	cache := marketdata.NewQuoteCache(nil, time.Minute, logger.Nop())
	s := scheduler.New(logger.Nop(), scheduler.WithRetry(0, 0))

	require.NoError(t, s.AddJob(NewExpireDayOrdersJob(&countingExpirer{}, "0 30 15 * * *", logger.Nop())))
	require.NoError(t, s.AddJob(NewQuoteFlushJob(cache, logger.Nop())))
	require.NoError(t, s.AddJob(NewQuoteCleanupJob(cache, time.Minute, logger.Nop())))

	assert.Equal(t, []string{"expire_day_orders", "quote_cleanup", "quote_flush"}, s.GetAllJobs())
}

func TestQuoteCleanupJob(t *testing.T) {
	cache := marketdata.NewQuoteCache(nil, time.Minute, logger.Nop())
	cache.Update(marketdata.MarketData{Symbol: "OLD", Last: 1, Timestamp: time.Now().Add(-time.Hour)})
	cache.Update(marketdata.MarketData{Symbol: "NEW", Last: 1, Timestamp: time.Now()})

	job := NewQuoteCleanupJob(cache, 10*time.Minute, logger.Nop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, cache.Len())
}

func TestQuoteFlushJob_MemoryOnly(t *testing.T) {
	cache := marketdata.NewQuoteCache(nil, time.Minute, logger.Nop())
	cache.Update(marketdata.MarketData{Symbol: "AAPL", Last: 1, Timestamp: time.Now()})

	require.NoError(t, NewQuoteFlushJob(cache, logger.Nop()).Run(context.Background()))
}

type fixedMarker int

func (m fixedMarker) MarkPositions() int { return int(m) }

func TestMarkPositionsJob(t *testing.T) {
	job := NewMarkPositionsJob(fixedMarker(2), logger.Nop())
	assert.Equal(t, "mark_positions", job.Name())
	assert.Equal(t, "0 * * * * *", job.Schedule())
	assert.NoError(t, job.Run(context.Background()))
}
