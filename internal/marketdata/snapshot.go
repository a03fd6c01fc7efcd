package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/tradedesk/pkg/httputil"
	"github.com/wonny/tradedesk/pkg/logger"
)

// Snapshot is the REST representation of a symbol's current state
type Snapshot struct {
	Symbol  string  `json:"symbol"`
	Last    float64 `json:"last"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	BidSize float64 `json:"bidSize"`
	AskSize float64 `json:"askSize"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
	Volume  float64 `json:"volume"`
}

// applyTo seeds md with the snapshot. Fields the snapshot leaves at zero are
// kept. Once a trade has been seen, the snapshot can no longer move Last or
// Open and may only widen High and Low; it can arrive after newer ticks.
func (s Snapshot) applyTo(md *MarketData) {
	set := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	traded := md.Last > 0
	if !traded {
		set(&md.Last, s.Last)
		set(&md.Open, s.Open)
		set(&md.Close, s.Close)
	}
	if s.High > 0 && s.High > md.High {
		md.High = s.High
	}
	if s.Low > 0 && (md.Low == 0 || s.Low < md.Low) {
		md.Low = s.Low
	}
	if md.Bid == 0 && md.Ask == 0 {
		set(&md.Bid, s.Bid)
		set(&md.Ask, s.Ask)
		set(&md.BidVolume, s.BidSize)
		set(&md.AskVolume, s.AskSize)
	}
	if s.Volume > md.TotalVolume {
		md.TotalVolume = s.Volume
	}
	if !traded {
		md.Source = SourceSnapshot
		md.Timestamp = time.Now()
	}
}

// SnapshotFetcher requests initial snapshots from the REST endpoint
type SnapshotFetcher struct {
	client  *httputil.Client
	baseURL string
}

// NewSnapshotFetcher creates a fetcher throttled to perSecond requests
func NewSnapshotFetcher(baseURL string, perSecond float64, log *logger.Logger) *SnapshotFetcher {
	if perSecond <= 0 {
		perSecond = 1
	}
	client := httputil.New(log, 10*time.Second).
		WithRetry(2, 250*time.Millisecond).
		WithLimiter(rate.NewLimiter(rate.Limit(perSecond), 1))

	return &SnapshotFetcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Fetch returns the snapshot for symbol from GET {base}/snapshot/{symbol}
func (f *SnapshotFetcher) Fetch(ctx context.Context, symbol string) (Snapshot, error) {
	var snap Snapshot
	endpoint := fmt.Sprintf("%s/snapshot/%s", f.baseURL, url.PathEscape(symbol))
	if err := f.client.GetJSON(ctx, endpoint, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("fetch snapshot %s: %w", symbol, err)
	}
	if snap.Symbol != "" && !strings.EqualFold(snap.Symbol, symbol) {
		return Snapshot{}, fmt.Errorf("fetch snapshot %s: response is for %s", symbol, snap.Symbol)
	}
	return snap, nil
}
