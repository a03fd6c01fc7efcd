package jobs

import (
	"context"

	"github.com/wonny/tradedesk/pkg/logger"
)

// DayOrderExpirer expires active DAY orders and reports how many it touched
type DayOrderExpirer interface {
	ExpireDayOrders() int
}

// ExpireDayOrdersJob expires DAY orders at the market close
type ExpireDayOrdersJob struct {
	orders   DayOrderExpirer
	schedule string
	logger   *logger.Logger
}

// NewExpireDayOrdersJob creates the job. schedule is a cron expression with seconds.
func NewExpireDayOrdersJob(orders DayOrderExpirer, schedule string, log *logger.Logger) *ExpireDayOrdersJob {
	if schedule == "" {
		schedule = "0 0 16 * * 1-5"
	}
	return &ExpireDayOrdersJob{
		orders:   orders,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ExpireDayOrdersJob) Name() string {
	return "expire_day_orders"
}

// Schedule returns the cron schedule (market close by default)
func (j *ExpireDayOrdersJob) Schedule() string {
	return j.schedule
}

// Run expires every active DAY order
func (j *ExpireDayOrdersJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	count := j.orders.ExpireDayOrders()
	j.logger.WithField("expired", count).Info("Day orders expired")
	return nil
}
