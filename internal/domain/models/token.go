package models

// Token is the identity of an asset. Address is the only stable field and
// compares case-insensitively; symbol and name may differ between feeds.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals *int   `json:"decimals,omitempty"`
}

// PriceData holds market figures in USD. Optional figures are nil when the
// feed did not report them. Timestamp is unix milliseconds.
type PriceData struct {
	Price                 float64  `json:"price"`
	PriceChange24h        *float64 `json:"priceChange24h,omitempty"`
	PriceChangePercent24h *float64 `json:"priceChangePercent24h,omitempty"`
	Volume24h             *float64 `json:"volume24h,omitempty"`
	Liquidity             *float64 `json:"liquidity,omitempty"`
	MarketCap             *float64 `json:"marketCap,omitempty"`
	Timestamp             int64    `json:"timestamp"`
}

// PriceSnapshot is one feed's observation of a token.
type PriceSnapshot struct {
	Token       Token     `json:"token"`
	PriceData   PriceData `json:"priceData"`
	Source      Source    `json:"source"`
	Chain       string    `json:"chain,omitempty"`
	PairAddress string    `json:"pairAddress,omitempty"`
}

// AggregatedToken is the reconciled view of a token across feeds. It is
// rebuilt from scratch on every merge.
type AggregatedToken struct {
	Token           Token     `json:"token"`
	PriceData       PriceData `json:"priceData"`
	Sources         []Source  `json:"sources"`
	Chains          []string  `json:"chains"`
	PairAddresses   []string  `json:"pairAddresses"`
	BestPrice       float64   `json:"bestPrice"`
	AveragePrice    float64   `json:"averagePrice"`
	TotalVolume24h  float64   `json:"totalVolume24h"`
	TotalLiquidity  float64   `json:"totalLiquidity"`
	ConfidenceScore float64   `json:"confidenceScore"`
	LastUpdated     int64     `json:"lastUpdated"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Deref returns *p or zero.
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
