package quote

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vol-core/pkg/broker"
)

// MonitorConfig is one instrument to stream live.
type MonitorConfig struct {
	Symbol   string `yaml:"symbol"`
	Exchange string `yaml:"exchange"`
	Currency string `yaml:"currency"`
}

// Contract fills exchange and currency defaults.
func (m MonitorConfig) Contract() broker.Contract {
	c := broker.StockContract(strings.ToUpper(m.Symbol))
	if m.Exchange != "" {
		c.Exchange = m.Exchange
	}
	if m.Currency != "" {
		c.Currency = m.Currency
	}
	return c
}

// Watchlist is the top-level watchlist.yaml structure.
type Watchlist struct {
	Tickers  []string        `yaml:"tickers"`
	Kinds    []string        `yaml:"kinds"`
	Monitors []MonitorConfig `yaml:"monitors"`
}

// LoadWatchlist reads and validates a watchlist file.
func LoadWatchlist(path string) (*Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseWatchlist(data)
}

// ParseWatchlist decodes YAML; tickers are upper-cased and de-duplicated.
func ParseWatchlist(data []byte) (*Watchlist, error) {
	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}

	seen := make(map[string]bool, len(wl.Tickers))
	tickers := wl.Tickers[:0]
	for _, t := range wl.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	wl.Tickers = tickers

	for i, m := range wl.Monitors {
		if strings.TrimSpace(m.Symbol) == "" {
			return nil, fmt.Errorf("monitor %d: symbol is required", i)
		}
	}
	if _, err := wl.DataKinds(); err != nil {
		return nil, err
	}
	return &wl, nil
}

// DataKinds returns the configured kinds, or every kind when none is listed.
func (w *Watchlist) DataKinds() ([]broker.DataKind, error) {
	if len(w.Kinds) == 0 {
		return broker.Kinds, nil
	}
	out := make([]broker.DataKind, 0, len(w.Kinds))
	for _, k := range w.Kinds {
		kind, err := broker.ParseDataKind(k)
		if err != nil {
			return nil, fmt.Errorf("watchlist kinds: %w", err)
		}
		out = append(out, kind)
	}
	return out, nil
}
