package config

import "sort"

// TickerSets are the built-in watchlists.
var TickerSets = map[string][]string{
	"stocks": {
		"AAPL", "ABBV", "ALAB", "AMZN", "AVGO", "CRWV", "GOOG", "GOOGL", "HIMS",
		"IONQ", "JNJ", "JPM", "LLY", "MA", "MCD", "MSFT", "NVDA", "OKLO", "ORCL",
		"PEP", "QQQ", "QUBT", "RUM", "TSLA", "WMT",
	},
	"nasdaq": {
		"AAPL", "LUCD", "NVDA", "AMZN", "META", "GOOGL", "GOOG", "TSLA", "IONQ",
		"QUBT", "RUM", "AMD", "INTC", "QCOM", "TXN", "AVGO", "COST", "TMUS",
		"SMCI", "CMCSA", "SBUX", "GILD", "AMTX", "BKNG", "JPM",
	},
}

// TickerSetNames returns the watchlist names in sorted order.
func TickerSetNames() []string {
	names := make([]string, 0, len(TickerSets))
	for name := range TickerSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
