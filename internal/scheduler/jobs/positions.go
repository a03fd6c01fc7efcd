package jobs

import (
	"context"

	"github.com/wonny/tradedesk/pkg/logger"
)

// PositionMarker marks open positions to market and reports how many it marked
type PositionMarker interface {
	MarkPositions() int
}

// MarkPositionsJob sweeps open positions to the latest market price
type MarkPositionsJob struct {
	marker PositionMarker
	logger *logger.Logger
}

// NewMarkPositionsJob creates a new mark-to-market job
func NewMarkPositionsJob(marker PositionMarker, log *logger.Logger) *MarkPositionsJob {
	return &MarkPositionsJob{
		marker: marker,
		logger: log,
	}
}

// Name returns the job name
func (j *MarkPositionsJob) Name() string {
	return "mark_positions"
}

// Schedule returns the cron schedule (every minute)
func (j *MarkPositionsJob) Schedule() string {
	return "0 * * * * *"
}

// Run marks every open position
func (j *MarkPositionsJob) Run(ctx context.Context) error {
	marked := j.marker.MarkPositions()
	j.logger.WithField("marked", marked).Debug("Positions marked to market")
	return nil
}
