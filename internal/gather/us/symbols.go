package us

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultSymbols is the watch list gathered when no symbols are configured:
// large-cap tech, the broad index ETFs and the major US banks.
var DefaultSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA", "SPY", "QQQ",
	"BANC", "BAC", "C", "JPM", "GS", "MS", "USB", "UNH",
}

// LoadCSVSymbols reads the first column ("symbol") from a CSV file and returns
// all symbols found. The file must have a header row.
func LoadCSVSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbols file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading symbols file: %w", err)
	}
	if len(records) < 1 {
		return nil, nil
	}

	symbols := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) > 0 {
			symbols = append(symbols, rec[0])
		}
	}
	return NormalizeSymbols(symbols), nil
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols, drops
// index tickers such as ^VIX that the equity feed does not carry, and
// returns them sorted.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || strings.HasPrefix(s, "^") {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
