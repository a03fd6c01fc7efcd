package marketdata

import "time"

// Source tells where the latest update of a snapshot came from
type Source string

const (
	SourceLive      Source = "LIVE"
	SourceSimulated Source = "SIMULATED"
	SourceSnapshot  Source = "SNAPSHOT"
)

// MarketData is the latest known state of one symbol.
// Prices are display data and use float64.
type MarketData struct {
	Symbol      string    `json:"symbol"`
	Last        float64   `json:"last"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	LastVolume  float64   `json:"last_volume"`
	BidVolume   float64   `json:"bid_volume"`
	AskVolume   float64   `json:"ask_volume"`
	TotalVolume float64   `json:"total_volume"`
	Source      Source    `json:"source,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ApplyTrade records a trade. Open is set by the first trade; high and low widen to include price.
func (m *MarketData) ApplyTrade(price, volume float64) {
	m.Last = price
	m.LastVolume = volume
	m.TotalVolume += volume
	m.Timestamp = time.Now()

	if m.High == 0 || price > m.High {
		m.High = price
	}
	if m.Low == 0 || price < m.Low {
		m.Low = price
	}
	if m.Open == 0 {
		m.Open = price
	}
}

// ApplyQuote records the top of book
func (m *MarketData) ApplyQuote(bid, bidSize, ask, askSize float64) {
	m.Bid = bid
	m.BidVolume = bidSize
	m.Ask = ask
	m.AskVolume = askSize
	m.Timestamp = time.Now()
}

// Mid is the bid/ask midpoint
func (m MarketData) Mid() float64 {
	return (m.Bid + m.Ask) / 2
}

// Spread is ask minus bid
func (m MarketData) Spread() float64 {
	return m.Ask - m.Bid
}

// Change is last minus open
func (m MarketData) Change() float64 {
	return m.Last - m.Open
}

// ChangePercent is Change relative to open, 0 when open is not positive
func (m MarketData) ChangePercent() float64 {
	if m.Open <= 0 {
		return 0
	}
	return m.Change() / m.Open * 100
}

// Valid reports whether any price has been observed
func (m MarketData) Valid() bool {
	return m.Symbol != "" && (m.Last > 0 || m.Bid > 0 || m.Ask > 0)
}

// View is a snapshot with derived figures, used for JSON output
type View struct {
	MarketData
	Mid           float64 `json:"mid"`
	Spread        float64 `json:"spread"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// View returns the snapshot with derived figures filled in
func (m MarketData) View() View {
	return View{
		MarketData:    m,
		Mid:           m.Mid(),
		Spread:        m.Spread(),
		Change:        m.Change(),
		ChangePercent: m.ChangePercent(),
	}
}
