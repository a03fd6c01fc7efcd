package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wonny/tradedesk/pkg/config"
)

func testUniverse(t require.TestingT) *config.SymbolUniverse {
	u, err := config.LoadSymbols("")
	require.NoError(t, err)
	return u
}

func TestSimulator_FirstStepStartsAtBasePrice(t *testing.T) {
	sim := NewSimulator(testUniverse(t), 42)
	md := MarketData{Symbol: "AAPL"}

	sim.Step(&md)

	assert.Equal(t, 182.50, md.Open)
	assert.LessOrEqual(t, math.Abs(md.Last-182.50), 182.50*0.01)
	assert.GreaterOrEqual(t, md.LastVolume, 100.0)
	assert.Less(t, md.LastVolume, 1100.0)
	assert.Less(t, md.Bid, md.Ask)
	assert.InDelta(t, md.Last*0.001, md.Spread(), 1e-9)
	assert.InDelta(t, md.Last, md.Mid(), 1e-9)
	assert.Equal(t, SourceSimulated, md.Source)
}

func TestSimulator_UnknownSymbolUsesFallback(t *testing.T) {
	sim := NewSimulator(testUniverse(t), 1)
	md := MarketData{Symbol: "ZZZZ"}

	sim.Step(&md)

	assert.Equal(t, config.FallbackBasePrice, md.Open)
}

func TestSimulator_SameSeedSameWalk(t *testing.T) {
	a := NewSimulator(nil, 7)
	b := NewSimulator(nil, 7)
	mdA := MarketData{Symbol: "X"}
	mdB := MarketData{Symbol: "X"}

	for i := 0; i < 50; i++ {
		a.Step(&mdA)
		b.Step(&mdB)
		require.Equal(t, mdA.Last, mdB.Last)
	}
}

func TestSimulator_WalkInvariants(t *testing.T) {
	universe := testUniverse(t)

	rapid.Check(t, func(t *rapid.T) {
		sim := NewSimulator(universe, rapid.Uint64().Draw(t, "seed"))
		symbol := rapid.SampledFrom(config.DefaultSymbols).Draw(t, "symbol")
		steps := rapid.IntRange(1, 200).Draw(t, "steps")

		md := MarketData{Symbol: symbol}
		volume := 0.0
		for i := 0; i < steps; i++ {
			prev := md.Last
			sim.Step(&md)
			volume += md.LastVolume

			if prev > 0 && math.Abs(md.Last-prev) > prev*0.01+1e-9 {
				t.Fatalf("step %d moved %f -> %f", i, prev, md.Last)
			}
			if !(md.Low <= md.Last && md.Last <= md.High) {
				t.Fatalf("last %f outside [%f, %f]", md.Last, md.Low, md.High)
			}
			if md.Bid >= md.Ask {
				t.Fatalf("crossed book %f/%f", md.Bid, md.Ask)
			}
		}
		if md.Open != universe.BasePrice(symbol) {
			t.Fatalf("open %f changed from base %f", md.Open, universe.BasePrice(symbol))
		}
		if math.Abs(md.TotalVolume-volume) > 1e-6 {
			t.Fatalf("total volume %f, want %f", md.TotalVolume, volume)
		}
	})
}
