package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/domain/repository"
	xhttp "TokenPulse/pkg/http"

	"github.com/tidwall/gjson"
)

// GeckoTerminal reads token and pool figures for a single network.
// Attribute shapes vary between endpoints (strings vs. per-window objects),
// so payloads are read with gjson rather than fixed structs.
type GeckoTerminal struct {
	base    *Base
	network string
}

func NewGeckoTerminal(base *Base, network string) *GeckoTerminal {
	if network == "" {
		network = "solana"
	}
	return &GeckoTerminal{base: base, network: network}
}

func (g *GeckoTerminal) Source() models.Source { return models.SourceGeckoTerminal }

// Fetch returns at most one snapshot per address. Unknown tokens (404) are
// skipped quietly.
func (g *GeckoTerminal) Fetch(ctx context.Context, addresses []string) ([]models.PriceSnapshot, error) {
	return g.base.Collect(ctx, addresses, func(ctx context.Context, addr string) ([]models.PriceSnapshot, error) {
		var raw []byte
		path := fmt.Sprintf("/networks/%s/tokens/%s", url.PathEscape(g.network), url.PathEscape(addr))
		if err := g.base.GetJSONWithRetry(ctx, path, nil, &raw); err != nil {
			if xhttp.StatusCode(err) == http.StatusNotFound {
				return nil, nil
			}
			return nil, err
		}
		snap, ok := g.transformToken(raw)
		if !ok {
			return nil, nil
		}
		return []models.PriceSnapshot{snap}, nil
	}), nil
}

func (g *GeckoTerminal) Search(ctx context.Context, query string) ([]models.PriceSnapshot, error) {
	snaps, err := g.base.CachedSearch(ctx, query, func(ctx context.Context) ([]models.PriceSnapshot, error) {
		var raw []byte
		q := url.Values{"query": {query}, "network": {g.network}}
		if err := g.base.GetJSONWithRetry(ctx, "/search/pools", q, &raw); err != nil {
			return nil, err
		}
		return g.transformPools(raw), nil
	})
	if err != nil {
		return nil, fmt.Errorf("geckoterminal search: %w", err)
	}
	return snaps, nil
}

func (g *GeckoTerminal) transformToken(raw []byte) (models.PriceSnapshot, bool) {
	data := gjson.GetBytes(raw, "data")
	if data.IsArray() {
		data = data.Get("0")
	}
	attrs := data.Get("attributes")
	addr := attrs.Get("address").String()
	if !attrs.Exists() || addr == "" {
		return models.PriceSnapshot{}, false
	}

	price, _ := parseUSD(attrs.Get("price_usd").String())
	tok := models.Token{
		Address: addr,
		Symbol:  attrs.Get("symbol").String(),
		Name:    attrs.Get("name").String(),
	}
	if d := attrs.Get("decimals"); d.Exists() && d.Type == gjson.Number {
		n := int(d.Int())
		tok.Decimals = &n
	}

	return models.PriceSnapshot{
		Token: tok,
		PriceData: models.PriceData{
			Price:                 price,
			PriceChangePercent24h: optNumber(attrs.Get("price_change_percentage.h24")),
			Volume24h:             windowed(attrs.Get("volume_usd")),
			Liquidity:             firstUSD(attrs, "total_reserve_in_usd", "reserve_in_usd"),
			MarketCap:             firstUSD(attrs, "market_cap_usd", "fdv_usd"),
			Timestamp:             g.base.NowMillis(),
		},
		Source: models.SourceGeckoTerminal,
		Chain:  g.network,
	}, true
}

func (g *GeckoTerminal) transformPools(raw []byte) []models.PriceSnapshot {
	ts := g.base.NowMillis()
	pools := gjson.GetBytes(raw, "data").Array()
	out := make([]models.PriceSnapshot, 0, len(pools))
	for _, pool := range pools {
		attrs := pool.Get("attributes")
		network := pool.Get("relationships.network.data.id").String()
		if network == "" {
			network = g.network
		}
		// base token ids look like "<network>_<address>"
		baseID := pool.Get("relationships.base_token.data.id").String()
		addr := strings.TrimPrefix(baseID, network+"_")
		if addr == "" {
			continue
		}
		symbol, _, _ := strings.Cut(attrs.Get("name").String(), " / ")
		price, _ := parseUSD(attrs.Get("base_token_price_usd").String())

		out = append(out, models.PriceSnapshot{
			Token: models.Token{
				Address: addr,
				Symbol:  strings.TrimSpace(symbol),
				Name:    strings.TrimSpace(symbol),
			},
			PriceData: models.PriceData{
				Price:                 price,
				PriceChangePercent24h: optNumber(attrs.Get("price_change_percentage.h24")),
				Volume24h:             windowed(attrs.Get("volume_usd")),
				Liquidity:             firstUSD(attrs, "reserve_in_usd"),
				MarketCap:             firstUSD(attrs, "market_cap_usd", "fdv_usd"),
				Timestamp:             ts,
			},
			Source:      models.SourceGeckoTerminal,
			Chain:       network,
			PairAddress: attrs.Get("address").String(),
		})
	}
	return out
}

// windowed reads a figure that is either a scalar or an object keyed by window.
func windowed(v gjson.Result) *float64 {
	if v.IsObject() {
		v = v.Get("h24")
	}
	return optNumber(v)
}

func firstUSD(attrs gjson.Result, fields ...string) *float64 {
	for _, f := range fields {
		if v := optNumber(attrs.Get(f)); v != nil {
			return v
		}
	}
	return nil
}

func optNumber(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		return models.Float(v.Float())
	case gjson.String:
		return optUSD(v.String())
	default:
		return nil
	}
}

var _ repository.PriceSource = (*GeckoTerminal)(nil)
