package feeds

import (
	"context"
	"fmt"
	"net/url"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/domain/repository"
)

type DexScreener struct{ base *Base }

func NewDexScreener(base *Base) *DexScreener { return &DexScreener{base: base} }

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   dexToken `json:"baseToken"`
	PriceUsd    string   `json:"priceUsd"`
	Volume      struct {
		H24 *float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 *float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		Usd *float64 `json:"usd"`
	} `json:"liquidity"`
	Fdv       *float64 `json:"fdv"`
	MarketCap *float64 `json:"marketCap"`
}

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

func (d *DexScreener) Source() models.Source { return models.SourceDexScreener }

// Fetch returns one snapshot per trading pair of each address.
func (d *DexScreener) Fetch(ctx context.Context, addresses []string) ([]models.PriceSnapshot, error) {
	return d.base.Collect(ctx, addresses, func(ctx context.Context, addr string) ([]models.PriceSnapshot, error) {
		var resp dexResponse
		if err := d.base.GetJSONWithRetry(ctx, "/tokens/"+url.PathEscape(addr), nil, &resp); err != nil {
			return nil, err
		}
		return d.transform(resp), nil
	}), nil
}

func (d *DexScreener) Search(ctx context.Context, query string) ([]models.PriceSnapshot, error) {
	snaps, err := d.base.CachedSearch(ctx, query, func(ctx context.Context) ([]models.PriceSnapshot, error) {
		var resp dexResponse
		if err := d.base.GetJSONWithRetry(ctx, "/search", url.Values{"q": {query}}, &resp); err != nil {
			return nil, err
		}
		return d.transform(resp), nil
	})
	if err != nil {
		return nil, fmt.Errorf("dexscreener search: %w", err)
	}
	return snaps, nil
}

func (d *DexScreener) transform(resp dexResponse) []models.PriceSnapshot {
	ts := d.base.NowMillis()
	out := make([]models.PriceSnapshot, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		if p.BaseToken.Address == "" {
			continue
		}
		price, _ := parseUSD(p.PriceUsd)
		pd := models.PriceData{
			Price:     price,
			Volume24h: p.Volume.H24,
			Timestamp: ts,
		}
		if p.Liquidity != nil {
			pd.Liquidity = p.Liquidity.Usd
		}
		pd.MarketCap = p.MarketCap
		if pd.MarketCap == nil {
			pd.MarketCap = p.Fdv
		}
		// priceChange.h24 is a percentage; derive the absolute USD move from it.
		if pct := p.PriceChange.H24; pct != nil {
			pd.PriceChangePercent24h = models.Float(*pct)
			if price > 0 && *pct > -100 {
				pd.PriceChange24h = models.Float(price - price/(1+*pct/100))
			}
		}
		out = append(out, models.PriceSnapshot{
			Token: models.Token{
				Address: p.BaseToken.Address,
				Symbol:  p.BaseToken.Symbol,
				Name:    p.BaseToken.Name,
			},
			PriceData:   pd,
			Source:      models.SourceDexScreener,
			Chain:       p.ChainID,
			PairAddress: p.PairAddress,
		})
	}
	return out
}

var _ repository.PriceSource = (*DexScreener)(nil)
