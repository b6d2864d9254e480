// Package pricing holds the per-model token price table and computes costs
// from token counts.
//
// Rates are USD per million tokens. Keys are exact model IDs or wildcard
// prefixes ending in "*" ("claude-opus-4*"). Cache-read and cache-write rates
// fall back to multiples of the input rate when a model has no explicit
// override. The table lives in pricing.json in the data directory, is seeded
// from an embedded default, and is refreshed from the public pricing page
// when it gets old (see [Store]).
package pricing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// TokenCounts groups the four billed token categories.
type TokenCounts struct {
	InputTokens      int64 `json:"inputTokens"`
	OutputTokens     int64 `json:"outputTokens"`
	CacheReadTokens  int64 `json:"cacheReadTokens"`
	CacheWriteTokens int64 `json:"cacheWriteTokens"`
}

// Add returns the element-wise sum.
func (c TokenCounts) Add(o TokenCounts) TokenCounts {
	return TokenCounts{
		InputTokens:      c.InputTokens + o.InputTokens,
		OutputTokens:     c.OutputTokens + o.OutputTokens,
		CacheReadTokens:  c.CacheReadTokens + o.CacheReadTokens,
		CacheWriteTokens: c.CacheWriteTokens + o.CacheWriteTokens,
	}
}

// Total returns the sum of all categories.
func (c TokenCounts) Total() int64 {
	return c.InputTokens + c.OutputTokens + c.CacheReadTokens + c.CacheWriteTokens
}

// ModelRates are the per-million-token prices of one model. Optional cache
// overrides are nil when the multiplier rule applies.
type ModelRates struct {
	Input        float64  `json:"input"`
	Output       float64  `json:"output"`
	CacheRead    *float64 `json:"cacheRead,omitempty"`
	CacheWrite   *float64 `json:"cacheWrite,omitempty"`
	CacheWrite5m *float64 `json:"cacheWrite5m,omitempty"`
	CacheWrite1h *float64 `json:"cacheWrite1h,omitempty"`
}

// Cache write modes.
const (
	WriteMode5m = "5m"
	WriteMode1h = "1h"
)

// CacheRates holds the multipliers applied to the input rate for cache
// traffic without an explicit override.
type CacheRates struct {
	ReadMultiplier    float64 `json:"readMultiplier"`
	WriteMultiplier5m float64 `json:"writeMultiplier5m"`
	WriteMultiplier1h float64 `json:"writeMultiplier1h"`
	WriteMode         string  `json:"writeMode"`
}

// DefaultCacheRates are Anthropic's published cache multipliers.
func DefaultCacheRates() CacheRates {
	return CacheRates{
		ReadMultiplier:    0.1,
		WriteMultiplier5m: 1.25,
		WriteMultiplier1h: 2.0,
		WriteMode:         WriteMode5m,
	}
}

// Table is the pricing file.
type Table struct {
	Models map[string]ModelRates `json:"models"`
	Cache  CacheRates            `json:"cache"`
	// UpdatedAt is when the model rates were last refreshed (epoch ms).
	UpdatedAt int64 `json:"updatedAt"`
	// LastRefreshAttempt is when a refresh was last tried (epoch ms).
	LastRefreshAttempt int64 `json:"lastRefreshAttempt"`
}

// normalize fills zero multipliers with defaults so hand-edited files
// missing the cache block still price cache traffic.
func (t *Table) normalize() {
	if t.Models == nil {
		t.Models = map[string]ModelRates{}
	}
	def := DefaultCacheRates()
	if t.Cache.ReadMultiplier == 0 {
		t.Cache.ReadMultiplier = def.ReadMultiplier
	}
	if t.Cache.WriteMultiplier5m == 0 {
		t.Cache.WriteMultiplier5m = def.WriteMultiplier5m
	}
	if t.Cache.WriteMultiplier1h == 0 {
		t.Cache.WriteMultiplier1h = def.WriteMultiplier1h
	}
	if t.Cache.WriteMode != WriteMode1h {
		t.Cache.WriteMode = WriteMode5m
	}
}

// ///////////////////////////////////////////////
// Lookup
// ///////////////////////////////////////////////

// Lookup returns the rates for model and the table key that matched. An
// exact key wins; otherwise the longest matching "prefix*" key is used, with
// equal lengths broken lexicographically.
func (t *Table) Lookup(model string) (ModelRates, string, bool) {
	if t == nil || model == "" {
		return ModelRates{}, "", false
	}
	if r, ok := t.Models[model]; ok {
		return r, model, true
	}

	matches := lo.Filter(lo.Keys(t.Models), func(k string, _ int) bool {
		prefix, ok := strings.CutSuffix(k, "*")
		return ok && strings.HasPrefix(model, prefix)
	})
	if len(matches) == 0 {
		return ModelRates{}, "", false
	}
	slices.SortFunc(matches, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return t.Models[matches[0]], matches[0], true
}

// ///////////////////////////////////////////////
// Cost
// ///////////////////////////////////////////////

var million = decimal.NewFromInt(1_000_000)

// readRate is the cache-read price per million tokens.
func (t *Table) readRate(r ModelRates) float64 {
	if r.CacheRead != nil {
		return *r.CacheRead
	}
	return r.Input * t.Cache.ReadMultiplier
}

// writeRate is the cache-write price per million tokens for the table's
// write mode.
func (t *Table) writeRate(r ModelRates) float64 {
	if t.Cache.WriteMode == WriteMode1h {
		if r.CacheWrite1h != nil {
			return *r.CacheWrite1h
		}
		return r.Input * t.Cache.WriteMultiplier1h
	}
	if r.CacheWrite5m != nil {
		return *r.CacheWrite5m
	}
	if r.CacheWrite != nil {
		return *r.CacheWrite
	}
	return r.Input * t.Cache.WriteMultiplier5m
}

// CostDecimal prices counts for model exactly. ok is false when the model
// has no entry.
func (t *Table) CostDecimal(model string, c TokenCounts) (decimal.Decimal, bool) {
	r, _, ok := t.Lookup(model)
	if !ok {
		return decimal.Zero, false
	}
	parts := []struct {
		n    int64
		rate float64
	}{
		{c.InputTokens, r.Input},
		{c.OutputTokens, r.Output},
		{c.CacheReadTokens, t.readRate(r)},
		{c.CacheWriteTokens, t.writeRate(r)},
	}
	sum := decimal.Zero
	for _, p := range parts {
		if p.n == 0 {
			continue
		}
		sum = sum.Add(decimal.NewFromInt(p.n).Div(million).Mul(decimal.NewFromFloat(p.rate)))
	}
	return sum, true
}

// Cost prices counts for model in USD.
func (t *Table) Cost(model string, c TokenCounts) (float64, bool) {
	d, ok := t.CostDecimal(model, c)
	return d.InexactFloat64(), ok
}

// Summary is the priced total of several models.
type Summary struct {
	CostUSD float64
	// MissingPricing lists models without a table entry, sorted. Their
	// tokens are not included in CostUSD.
	MissingPricing []string
}

// Price sums the cost of every model in byModel.
func (t *Table) Price(byModel map[string]TokenCounts) Summary {
	total := decimal.Zero
	var missing []string
	for _, model := range sortedKeys(byModel) {
		d, ok := t.CostDecimal(model, byModel[model])
		if !ok {
			missing = append(missing, model)
			continue
		}
		total = total.Add(d)
	}
	return Summary{CostUSD: total.Round(6).InexactFloat64(), MissingPricing: missing}
}

// WithWriteMode returns a copy of t using mode for cache writes. An empty
// mode keeps the table's own setting.
func (t *Table) WithWriteMode(mode string) (*Table, error) {
	cp := *t
	switch mode {
	case "":
	case WriteMode5m, WriteMode1h:
		cp.Cache.WriteMode = mode
	default:
		return nil, fmt.Errorf("unknown cache write mode %q", mode)
	}
	return &cp, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
