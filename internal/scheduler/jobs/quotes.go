package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/pkg/logger"
)

// QuoteFlushJob mirrors changed quotes to Redis
type QuoteFlushJob struct {
	cache  *marketdata.QuoteCache
	logger *logger.Logger
}

// NewQuoteFlushJob creates a new quote flush job
func NewQuoteFlushJob(cache *marketdata.QuoteCache, log *logger.Logger) *QuoteFlushJob {
	return &QuoteFlushJob{
		cache:  cache,
		logger: log,
	}
}

// Name returns the job name
func (j *QuoteFlushJob) Name() string {
	return "quote_flush"
}

// Schedule returns the cron schedule (every 5 seconds)
func (j *QuoteFlushJob) Schedule() string {
	return "*/5 * * * * *"
}

// Run writes dirty quotes
func (j *QuoteFlushJob) Run(ctx context.Context) error {
	if _, err := j.cache.Flush(ctx); err != nil {
		return fmt.Errorf("flush quotes: %w", err)
	}
	return nil
}

// QuoteCleanupJob drops quotes that stopped updating
type QuoteCleanupJob struct {
	cache  *marketdata.QuoteCache
	maxAge time.Duration
	logger *logger.Logger
}

// NewQuoteCleanupJob creates a new quote cleanup job
func NewQuoteCleanupJob(cache *marketdata.QuoteCache, maxAge time.Duration, log *logger.Logger) *QuoteCleanupJob {
	return &QuoteCleanupJob{
		cache:  cache,
		maxAge: maxAge,
		logger: log,
	}
}

// Name returns the job name
func (j *QuoteCleanupJob) Name() string {
	return "quote_cleanup"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *QuoteCleanupJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run removes stale quotes
func (j *QuoteCleanupJob) Run(ctx context.Context) error {
	count := j.cache.CleanStale(j.maxAge)
	if count > 0 {
		j.logger.WithField("removed", count).Info("Quote cleanup completed")
	}
	return nil
}
