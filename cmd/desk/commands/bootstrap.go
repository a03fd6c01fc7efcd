package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/tradedesk/internal/desk"
	"github.com/wonny/tradedesk/internal/journal"
	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/pkg/config"
	"github.com/wonny/tradedesk/pkg/database"
	"github.com/wonny/tradedesk/pkg/logger"
	"github.com/wonny/tradedesk/pkg/redis"
)

// runtime holds the desk and the optional infrastructure it was built with
type runtime struct {
	desk     *desk.Desk
	redis    *redis.Client
	db       *database.DB
	throttle *redis.Throttle
}

// Close stops the desk and releases connections
func (r *runtime) Close() {
	r.desk.Stop()
	if r.redis != nil {
		_ = r.redis.Close()
	}
	r.db.Close()
}

// buildDesk wires the feed, the optional journal and quote store, and the desk.
// Redis and PostgreSQL are used only when configured.
func buildDesk(ctx context.Context, cfg *config.Config, log *logger.Logger, seed uint64) (*runtime, error) {
	universe, err := config.LoadSymbols(cfg.Feed.SymbolsFile)
	if err != nil {
		return nil, err
	}

	var feedOpts []marketdata.Option
	if cfg.Feed.Live() && cfg.Feed.RestURL != "" {
		feedOpts = append(feedOpts, marketdata.WithSnapshotFetcher(
			marketdata.NewSnapshotFetcher(cfg.Feed.RestURL, cfg.Feed.SnapshotRate, log)))
	}
	feed := marketdata.NewFeed(marketdata.ConfigFrom(cfg.Feed), marketdata.NewSimulator(universe, seed), log, feedOpts...)

	rt := &runtime{}
	var deskOpts []desk.Option

	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, quotes stay in memory")
	} else if rdb.Enabled() {
		rt.redis = rdb
		rt.throttle = redis.NewThrottle(rdb, "desk")
		deskOpts = append(deskOpts, desk.WithQuoteStore(redis.NewCache(rdb, "desk")))
		log.WithField("addr", rdb.Addr()).Info("Redis quote store and order throttle enabled")
	}

	db, err := database.New(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrDisabled):
		log.Debug("Journal disabled")
	case err != nil:
		log.WithError(err).Warn("Database unavailable, journal disabled")
	default:
		repo := journal.NewRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal schema: %w", err)
		}
		rt.db = db
		deskOpts = append(deskOpts, desk.WithJournal(repo))
		log.Info("Journal enabled")
	}

	d, err := desk.New(desk.ConfigFrom(cfg), feed, log, deskOpts...)
	if err != nil {
		rt.db.Close()
		if rt.redis != nil {
			_ = rt.redis.Close()
		}
		return nil, fmt.Errorf("create desk: %w", err)
	}
	rt.desk = d
	return rt, nil
}
