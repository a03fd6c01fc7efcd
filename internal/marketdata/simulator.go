package marketdata

import (
	"math/rand/v2"
	"sync"
)

// BasePrices seeds the first simulated price of a symbol
type BasePrices interface {
	BasePrice(symbol string) float64
}

const (
	simSpreadRatio = 0.001 // 0.1% of price
	simMaxMoveBps  = 100   // ±1% of the last price
)

// Simulator produces a bounded random walk of trades and quotes
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices BasePrices
}

// NewSimulator creates a simulator. The same seed replays the same walk.
func NewSimulator(prices BasePrices, seed uint64) *Simulator {
	return &Simulator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		prices: prices,
	}
}

func (s *Simulator) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Step advances md by one simulated trade and quote.
// A symbol without a last price starts at its base price, which also becomes the open.
func (s *Simulator) Step(md *MarketData) {
	last := md.Last
	if last <= 0 {
		last = 100.0
		if s.prices != nil {
			if p := s.prices.BasePrice(md.Symbol); p > 0 {
				last = p
			}
		}
		md.Open = last
	}

	change := float64(s.intN(2*simMaxMoveBps)-simMaxMoveBps) / 10000 * last
	price := last + change
	volume := float64(s.intN(1000) + 100)
	md.ApplyTrade(price, volume)

	spread := price * simSpreadRatio
	md.ApplyQuote(price-spread/2, float64(s.intN(500)+100), price+spread/2, float64(s.intN(500)+100))
	md.Source = SourceSimulated
}
