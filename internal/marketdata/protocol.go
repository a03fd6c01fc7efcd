package marketdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnknownRecord   = errors.New("unknown record type")
)

// RecordType is the tag of a live feed record
type RecordType string

const (
	RecordTrade RecordType = "trade"
	RecordQuote RecordType = "quote"
)

// Record is one decoded live feed message
type Record struct {
	Type    RecordType `json:"type"`
	Symbol  string     `json:"symbol"`
	Price   float64    `json:"price,omitempty"`
	Volume  float64    `json:"volume,omitempty"`
	Bid     float64    `json:"bid,omitempty"`
	Ask     float64    `json:"ask,omitempty"`
	BidSize float64    `json:"bidSize,omitempty"`
	AskSize float64    `json:"askSize,omitempty"`
}

// ParseRecord decodes a tagged JSON record
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	rec.Symbol = strings.ToUpper(strings.TrimSpace(rec.Symbol))
	switch rec.Type {
	case RecordTrade:
		if rec.Symbol == "" || rec.Price <= 0 || rec.Volume < 0 {
			return Record{}, fmt.Errorf("%w: trade needs symbol and positive price", ErrMalformedRecord)
		}
	case RecordQuote:
		if rec.Symbol == "" || rec.Bid < 0 || rec.Ask < 0 || rec.BidSize < 0 || rec.AskSize < 0 {
			return Record{}, fmt.Errorf("%w: quote needs symbol and non-negative prices", ErrMalformedRecord)
		}
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownRecord, rec.Type)
	}
	return rec, nil
}

// controlMessage is sent to the live source
type controlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

func subscribeMessage(symbol string) controlMessage {
	return controlMessage{Type: "subscribe", Symbol: symbol}
}

func unsubscribeMessage(symbol string) controlMessage {
	return controlMessage{Type: "unsubscribe", Symbol: symbol}
}

func heartbeatMessage() controlMessage {
	return controlMessage{Type: "heartbeat"}
}
