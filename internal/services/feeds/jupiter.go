package feeds

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"TokenPulse/internal/domain/models"
	"TokenPulse/internal/domain/repository"

	"github.com/tidwall/gjson"
)

// Jupiter is a price-only oracle. Ids may be mint addresses or symbols;
// the answer is keyed by the id as echoed back by the service.
type Jupiter struct{ base *Base }

func NewJupiter(base *Base) *Jupiter { return &Jupiter{base: base} }

func (j *Jupiter) Source() models.Source { return models.SourceJupiter }

// Prices returns the USD price of every id the oracle knows. The whole
// batch shares one cache entry and one unit of budget.
func (j *Jupiter) Prices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	joined := strings.Join(ids, ",")
	key := j.base.CacheKey(joined)

	var cached map[string]float64
	if j.base.cache.Get(ctx, key, &cached) {
		j.base.metrics.RecordCacheLookup(j.base.source.String(), true)
		return cached, nil
	}
	j.base.metrics.RecordCacheLookup(j.base.source.String(), false)

	if !j.base.TakeBudget() {
		return nil, ErrBudgetExhausted
	}

	var raw []byte
	if err := j.base.GetJSONWithRetry(ctx, "/price", url.Values{"ids": {joined}}, &raw); err != nil {
		j.base.metrics.RecordError(j.base.source.String() + "_fetch")
		return nil, fmt.Errorf("jupiter prices: %w", err)
	}

	prices := parseJupiter(raw)
	if len(prices) > 0 {
		j.base.cache.Set(ctx, key, prices, j.base.ttl)
	}
	return prices, nil
}

func parseJupiter(raw []byte) map[string]float64 {
	out := make(map[string]float64)
	gjson.GetBytes(raw, "data").ForEach(func(k, v gjson.Result) bool {
		id := v.Get("id").String()
		if id == "" {
			id = k.String()
		}
		if p := optNumber(v.Get("price")); p != nil && *p > 0 {
			out[id] = *p
		}
		return true
	})
	return out
}

var _ repository.PriceOracle = (*Jupiter)(nil)
