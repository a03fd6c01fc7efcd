package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/tradedesk/internal/marketdata"
	"github.com/wonny/tradedesk/internal/order"
	"github.com/wonny/tradedesk/pkg/logger"
)

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the desk headless and print market data",
	Long: `Runs the desk without the HTTP API for a fixed duration, printing every tick.
With --round-trip it buys and then sells --qty shares of the first symbol.

Example:
  go run ./cmd/desk simulate
  go run ./cmd/desk simulate --symbols AAPL,TSLA --duration 30s --round-trip`,
	RunE: runSimulate,
}

var (
	simSymbols   []string
	simDuration  time.Duration
	simSeed      uint64
	simRoundTrip bool
	simQty       int64
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringSliceVar(&simSymbols, "symbols", nil, "symbols to subscribe (default DESK_DEFAULT_SYMBOLS)")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 10*time.Second, "how long to run")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 42, "simulator seed")
	simulateCmd.Flags().BoolVar(&simRoundTrip, "round-trip", false, "buy then sell the first symbol")
	simulateCmd.Flags().Int64Var(&simQty, "qty", 10, "round-trip quantity")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Feed.Mode = "simulation"
	if len(simSymbols) > 0 {
		cfg.Desk.DefaultSymbols = nil
		for _, s := range simSymbols {
			cfg.Desk.DefaultSymbols = append(cfg.Desk.DefaultSymbols, strings.ToUpper(strings.TrimSpace(s)))
		}
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, simDuration)
	defer cancel()

	rt, err := buildDesk(ctx, cfg, log, simSeed)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.desk.Feed().Subscribe(marketdata.ListenerFunc(printTick))
	rt.desk.Orders().Subscribe(order.ListenerFunc(printOrderEvent))

	if err := rt.desk.Start(ctx); err != nil {
		return fmt.Errorf("start desk: %w", err)
	}

	banner("Simulating %s for %v (seed %d)", strings.Join(cfg.Desk.DefaultSymbols, ", "), simDuration, simSeed)

	if simRoundTrip && len(cfg.Desk.DefaultSymbols) > 0 {
		go roundTrip(ctx, rt, cfg.Desk.DefaultSymbols[0], decimal.NewFromInt(simQty))
	}

	<-ctx.Done()

	rule()
	printSummary(rt)
	return nil
}

// roundTrip buys qty at market, waits for the fill, then sells it
func roundTrip(ctx context.Context, rt *runtime, symbol string, qty decimal.Decimal) {
	for _, side := range []order.Side{order.SideBuy, order.SideSell} {
		id, err := rt.desk.PlaceOrder(order.SubmitRequest{
			Symbol:   symbol,
			Side:     side,
			Type:     order.TypeMarket,
			Quantity: qty,
		})
		if err != nil {
			refused("%s %s refused: %v", side, symbol, err)
			return
		}

		ticker := time.NewTicker(50 * time.Millisecond)
	wait:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				if o, ok := rt.desk.Orders().Get(id); ok && o.IsFinal() {
					break wait
				}
			}
		}
		ticker.Stop()
	}
}

func printTick(e marketdata.Event) {
	switch e.Type {
	case marketdata.EventTick:
		d := e.Data
		fmt.Printf("%s  %-6s last %10.2f  bid %10.2f  ask %10.2f  chg %+6.2f%%  vol %8.0f\n",
			e.Timestamp.Format("15:04:05.000"), d.Symbol, d.Last, d.Bid, d.Ask, d.ChangePercent(), d.TotalVolume)
	case marketdata.EventStatusChanged:
		fmt.Printf("[feed] %s\n", e.Status)
	case marketdata.EventError:
		fmt.Printf("[feed] error: %s\n", e.Error)
	}
}

func printOrderEvent(e order.Event) {
	o := e.Order
	switch {
	case e.IsFill():
		fmt.Printf("[order] %s %s %s %s @ %s\n", e.Type, o.Side, e.FillQty, o.Symbol, e.FillPrice.StringFixed(2))
	case e.Type == order.EventRejected:
		fmt.Printf("[order] %s %s: %s\n", e.Type, e.OrderID, e.Reason)
	default:
		fmt.Printf("[order] %s %s %s %s\n", e.Type, o.Side, o.Quantity, o.Symbol)
	}
}

func printSummary(rt *runtime) {
	s := rt.desk.Account().Summary()
	st := rt.desk.Orders().Stats()
	feed := rt.desk.Feed().State()

	section("Account",
		row{"Cash", s.Cash.StringFixed(2)},
		row{"Available", rt.desk.AvailableCash().StringFixed(2)},
		row{"Portfolio", s.PortfolioValue.StringFixed(2)},
		row{"Realized P&L", s.RealizedPnL.StringFixed(2)},
		row{"Total P&L", s.TotalPnL.StringFixed(2)},
	)
	section("Orders",
		row{"Total", fmt.Sprint(st.Total)},
		row{"Active", fmt.Sprint(st.Active)},
		row{"Filled", fmt.Sprint(st.Filled)},
		row{"Traded", st.ValueTraded.StringFixed(2)},
	)
	section("Feed",
		row{"Status", string(feed.Status)},
		row{"Simulating", fmt.Sprint(feed.Simulating)},
		row{"Symbols", strings.Join(feed.Symbols, ",")},
	)
	endReport()
}
