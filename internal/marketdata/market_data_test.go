package marketdata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketData_ApplyTrade(t *testing.T) {
	md := MarketData{Symbol: "AAPL"}

	md.ApplyTrade(100, 10)
	md.ApplyTrade(104, 5)
	md.ApplyTrade(98, 20)

	assert.Equal(t, 98.0, md.Last)
	assert.Equal(t, 100.0, md.Open)
	assert.Equal(t, 104.0, md.High)
	assert.Equal(t, 98.0, md.Low)
	assert.Equal(t, 20.0, md.LastVolume)
	assert.Equal(t, 35.0, md.TotalVolume)
	assert.False(t, md.Timestamp.IsZero())
}

func TestSnapshot_LateSnapshotKeepsNewerTrades(t *testing.T) {
	md := MarketData{Symbol: "AAPL"}
	md.ApplyTrade(200, 10)
	md.ApplyTrade(205, 10)
	source := md.Source

	Snapshot{Symbol: "AAPL", Last: 150, Open: 149, High: 151, Low: 148, Close: 147, Volume: 5}.applyTo(&md)

	assert.Equal(t, 205.0, md.Last)
	assert.Equal(t, 200.0, md.Open)
	assert.Equal(t, 205.0, md.High)
	assert.Equal(t, 148.0, md.Low, "a lower session low widens the range")
	assert.Equal(t, 20.0, md.TotalVolume)
	assert.Equal(t, source, md.Source)
}

func TestSnapshot_SeedsEmptySymbol(t *testing.T) {
	md := MarketData{Symbol: "AAPL"}

	Snapshot{Symbol: "AAPL", Last: 150, Bid: 149.9, Ask: 150.1, Open: 149, High: 151, Low: 148, Volume: 500}.applyTo(&md)

	assert.Equal(t, 150.0, md.Last)
	assert.Equal(t, 149.0, md.Open)
	assert.Equal(t, 151.0, md.High)
	assert.Equal(t, 148.0, md.Low)
	assert.Equal(t, 149.9, md.Bid)
	assert.Equal(t, 500.0, md.TotalVolume)
	assert.Equal(t, SourceSnapshot, md.Source)
}

func TestMarketData_Derived(t *testing.T) {
	md := MarketData{Symbol: "MSFT", Open: 200, Last: 210, Bid: 209.5, Ask: 210.5}

	assert.InDelta(t, 210.0, md.Mid(), 1e-9)
	assert.InDelta(t, 1.0, md.Spread(), 1e-9)
	assert.InDelta(t, 10.0, md.Change(), 1e-9)
	assert.InDelta(t, 5.0, md.ChangePercent(), 1e-9)
	assert.True(t, md.Valid())

	v := md.View()
	assert.InDelta(t, 5.0, v.ChangePercent, 1e-9)
	assert.Equal(t, "MSFT", v.Symbol)
}

func TestMarketData_NoOpen(t *testing.T) {
	md := MarketData{Symbol: "X", Last: 10}
	assert.Equal(t, 0.0, md.ChangePercent())
	assert.False(t, MarketData{Symbol: "X"}.Valid())
	assert.False(t, MarketData{Last: 1}.Valid())
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Record
		wantErr error
	}{
		{
			name:  "trade",
			input: `{"type":"trade","symbol":"aapl","price":181.5,"volume":200}`,
			want:  Record{Type: RecordTrade, Symbol: "AAPL", Price: 181.5, Volume: 200},
		},
		{
			name:  "quote",
			input: `{"type":"quote","symbol":"MSFT","bid":1,"ask":2,"bidSize":3,"askSize":4}`,
			want:  Record{Type: RecordQuote, Symbol: "MSFT", Bid: 1, Ask: 2, BidSize: 3, AskSize: 4},
		},
		{name: "unknown type", input: `{"type":"news","symbol":"AAPL"}`, wantErr: ErrUnknownRecord},
		{name: "missing type", input: `{"symbol":"AAPL"}`, wantErr: ErrUnknownRecord},
		{name: "not json", input: `{"type":`, wantErr: ErrMalformedRecord},
		{name: "trade without price", input: `{"type":"trade","symbol":"AAPL"}`, wantErr: ErrMalformedRecord},
		{name: "trade without symbol", input: `{"type":"trade","price":1}`, wantErr: ErrMalformedRecord},
		{name: "negative bid", input: `{"type":"quote","symbol":"A","bid":-1,"ask":2}`, wantErr: ErrMalformedRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord([]byte(tt.input))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
