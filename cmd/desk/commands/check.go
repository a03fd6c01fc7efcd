package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradedesk/pkg/config"
	"github.com/wonny/tradedesk/pkg/database"
	"github.com/wonny/tradedesk/pkg/redis"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and optional infrastructure",
	Long: `Loads the configuration and the symbol universe, then tests the PostgreSQL
journal database and Redis when they are configured.

Example:
  go run ./cmd/desk check
  go run ./cmd/desk check --env production`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	banner("Trading desk configuration check")

	cfg, err := loadConfig()
	if err != nil {
		failed(err)
		return err
	}
	passed("Config loaded (ENV: %s, feed: %s)", cfg.Env, cfg.Feed.Mode)

	universe, err := config.LoadSymbols(cfg.Feed.SymbolsFile)
	if err != nil {
		failed(err)
		return err
	}
	passed("Symbol universe loaded (%d symbols)", len(universe.Symbols))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var failed bool
	var broken bool
	if err := checkDatabase(ctx, cfg); err != nil {
		failed(err)
		broken = true
	}
	if err := checkRedis(ctx, cfg); err != nil {
		failed(err)
		broken = true
	}

	endReport()
	if broken {
		return errors.New("one or more checks failed")
	}
	passed("All checks passed")
	return nil
}

func checkDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg)
	if errors.Is(err, database.ErrDisabled) {
		skipped("Journal database not configured (DATABASE_URL)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("database health check: %w", err)
	}

	passed("Database %s (ping %v)", maskPassword(cfg.Database.URL), status.ResponseTime)
	fmt.Fprintf(out, "   Connections: %d total, %d idle, %d max\n",
		status.Stats.TotalConns, status.Stats.IdleConns, status.Stats.MaxConns)
	return nil
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled {
		skipped("Redis not enabled (REDIS_ENABLED)")
		return nil
	}

	client, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer client.Close()

	rtt, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	passed("Redis %s db %d (ping %v)", client.Addr(), cfg.Redis.DB, rtt)
	return nil
}

// maskPassword hides the password of a postgres URL
func maskPassword(url string) string {
	scheme := 0
	if i := strings.Index(url, "://"); i >= 0 {
		scheme = i + 3
	}
	at := strings.LastIndex(url, "@")
	if at <= scheme {
		return url
	}
	creds := url[scheme:at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return url
	}
	return url[:scheme] + creds[:colon] + ":***" + url[at:]
}
