package models

// Requests for the HTTP endpoints. Bound from the query string.

type TokensRequest struct {
	Addresses string `query:"addresses" json:"addresses" validate:"required,csvcount=1-50"`
}

type SearchRequest struct {
	Query string `query:"query" json:"query" validate:"required,min=1,max=100"`
}

type TopRequest struct {
	Metric   string `query:"metric" json:"metric" default:"volume24h" validate:"oneof=volume24h priceChangePercent24h marketCap liquidity"`
	Limit    int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
	Interval string `query:"interval" json:"interval" default:"24h" validate:"oneof=1h 24h 7d"`
}
