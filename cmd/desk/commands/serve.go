package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tradedesk/internal/api"
	"github.com/wonny/tradedesk/internal/api/handlers"
	"github.com/wonny/tradedesk/pkg/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the desk and its HTTP API",
	Long: `Starts the feed, the order manager and the scheduler, then serves the REST API
and the websocket event stream.

Endpoints:
  GET  /health
  POST /api/orders                   - place an order
  GET  /api/orders                   - list orders (?status= ?symbol= ?active=)
  GET  /api/orders/{id}
  POST /api/orders/{id}/cancel
  POST /api/orders/{id}/modify
  GET  /api/account                  - account summary
  GET  /api/account/positions
  GET  /api/account/transactions
  POST /api/account/deposit
  POST /api/account/withdraw
  GET  /api/market                   - all snapshots
  GET  /api/market/status
  GET  /api/market/{symbol}
  POST /api/market/{symbol}/subscribe
  POST /api/market/{symbol}/unsubscribe
  GET  /api/jobs
  POST /api/jobs/{name}/run
  GET  /api/stream                   - websocket (?channels=orders,market)

Example:
  go run ./cmd/desk serve
  go run ./cmd/desk serve --port 9090`,
	RunE: runServe,
}

var (
	servePort string
	serveSeed uint64
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API port (overrides PORT)")
	serveCmd.Flags().Uint64Var(&serveSeed, "seed", uint64(time.Now().UnixNano()), "simulator seed")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	log := logger.New(cfg)
	log.WithFields(map[string]interface{}{
		"port":      cfg.Port,
		"env":       cfg.Env,
		"feed_mode": cfg.Feed.Mode,
	}).Info("Initializing trading desk")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildDesk(ctx, cfg, log, serveSeed)
	if err != nil {
		return err
	}
	defer rt.Close()

	hub := handlers.NewStreamHub(log)
	rt.desk.Orders().Subscribe(hub)
	rt.desk.Feed().Subscribe(hub)
	defer hub.Close()

	if err := rt.desk.Start(ctx); err != nil {
		return fmt.Errorf("start desk: %w", err)
	}

	server := api.New(cfg, log, api.NewRouter(rt.desk, hub, rt.throttle, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\nServer running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
