package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSymbols is the watch list subscribed when nothing else is configured
var DefaultSymbols = []string{"AAPL", "MSFT", "GOOGL", "TSLA", "AMZN", "NVDA", "META", "SPY", "QQQ"}

// FallbackBasePrice seeds simulated symbols missing from the universe
const FallbackBasePrice = 100.0

//go:embed symbols.yaml
var defaultUniverse []byte

// SymbolUniverse maps tradable symbols to simulator base prices
type SymbolUniverse struct {
	Symbols []SymbolSpec `yaml:"symbols"`
}

// SymbolSpec is one entry of the universe file
type SymbolSpec struct {
	Symbol    string  `yaml:"symbol"`
	Name      string  `yaml:"name"`
	BasePrice float64 `yaml:"base_price"`
}

// BasePrice returns the configured base price for symbol, or FallbackBasePrice
func (u *SymbolUniverse) BasePrice(symbol string) float64 {
	if u != nil {
		for _, s := range u.Symbols {
			if s.Symbol == symbol && s.BasePrice > 0 {
				return s.BasePrice
			}
		}
	}
	return FallbackBasePrice
}

// LoadSymbols reads the universe from path, or the embedded defaults when path is empty.
// Unknown fields fail the decode so typos surface immediately.
func LoadSymbols(path string) (*SymbolUniverse, error) {
	data := defaultUniverse
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read symbols file: %w", err)
		}
	}

	var u SymbolUniverse
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&u); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}

	seen := make(map[string]bool, len(u.Symbols))
	for i := range u.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(u.Symbols[i].Symbol))
		if sym == "" {
			return nil, fmt.Errorf("symbols[%d]: symbol is required", i)
		}
		if seen[sym] {
			return nil, fmt.Errorf("symbols[%d]: duplicate symbol %s", i, sym)
		}
		if u.Symbols[i].BasePrice < 0 {
			return nil, fmt.Errorf("symbols[%d]: base_price must not be negative", i)
		}
		seen[sym] = true
		u.Symbols[i].Symbol = sym
	}

	return &u, nil
}
