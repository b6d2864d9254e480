package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tools.zach/dev/keepwarm/internal/pricing"
)

// ///////////////////////////////////////////////
// Aggregator
// ///////////////////////////////////////////////

// Aggregator refreshes the usage history from the cost tool, falling back
// to a transcript scan priced with the pricing table.
type Aggregator struct {
	HistoryPath string
	Pricing     *pricing.Store
	// WriteMode overrides the table's cache write mode ("5m" or "1h").
	WriteMode string
	// Tool is the external cost tool; nil or disabled skips it.
	Tool    *CostTool
	Scanner *Scanner
	// CacheFor is how long a refresh is reused before running again. Zero
	// always refreshes.
	CacheFor time.Duration
	Logger   *slog.Logger
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Refresh updates and persists the history for now. When the previous
// refresh is younger than CacheFor and covers today, the stored history is
// returned untouched. Errors are logged and degrade to whatever data is
// available; the returned history is never nil.
func (a *Aggregator) Refresh(ctx context.Context, now time.Time) *History {
	log := a.logger()

	h, err := LoadHistory(a.HistoryPath)
	if err != nil {
		log.Warn("usage history unreadable, starting fresh", "path", a.HistoryPath, "error", err)
	}
	if a.cached(h, now) {
		log.Debug("usage history cached", "age", now.Sub(time.UnixMilli(h.LastUpdated)))
		return h
	}

	daily, monthly, ok := a.fromTool(ctx, now)
	if !ok {
		daily, monthly, ok = a.fromTranscripts(ctx, now)
	}
	if !ok {
		return h
	}

	h.snapshot(now)
	for k, b := range daily {
		h.Apply(now, Daily, k, b)
	}
	for k, b := range monthly {
		h.Apply(now, Monthly, k, b)
	}
	h.Trim()
	h.LastUpdated = now.UnixMilli()

	if err := h.Save(a.HistoryPath); err != nil {
		log.Warn("failed to save usage history", "path", a.HistoryPath, "error", err)
	}
	return h
}

func (a *Aggregator) cached(h *History, now time.Time) bool {
	if a.CacheFor <= 0 || h.LastUpdated == 0 {
		return false
	}
	if _, ok := h.Today(now); !ok {
		return false
	}
	age := now.Sub(time.UnixMilli(h.LastUpdated))
	return age >= 0 && age < a.CacheFor
}

// fromTool asks the external tool for both series.
func (a *Aggregator) fromTool(ctx context.Context, now time.Time) (map[string]Bucket, map[string]Bucket, bool) {
	if !a.Tool.Enabled() {
		return nil, nil, false
	}
	log := a.logger()
	daily, err := a.Tool.Daily(ctx, now)
	if err != nil {
		log.Debug("cost tool unavailable", "error", err)
		return nil, nil, false
	}
	monthly, err := a.Tool.Monthly(ctx, now)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("cost tool monthly report failed", "error", err)
		monthly = nil
	}
	if len(daily) == 0 && len(monthly) == 0 {
		return nil, nil, false
	}
	return daily, monthly, true
}

// fromTranscripts scans this month's transcripts and prices the result.
func (a *Aggregator) fromTranscripts(ctx context.Context, now time.Time) (map[string]Bucket, map[string]Bucket, bool) {
	if a.Scanner == nil {
		return nil, nil, false
	}
	log := a.logger()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	days, err := a.Scanner.Scan(ctx, monthStart)
	if err != nil {
		log.Debug("transcript usage scan interrupted", "error", err)
		return nil, nil, false
	}

	table := a.table(ctx, now)
	stamp := now.UnixMilli()
	daily := make(map[string]Bucket, len(days))
	for day, models := range days {
		daily[day] = priced(table, models, stamp)
	}
	monthKey := now.Format(MonthLayout)
	monthly := map[string]Bucket{monthKey: priced(table, days.Sum(monthKey), stamp)}
	return daily, monthly, true
}

func (a *Aggregator) table(ctx context.Context, now time.Time) *pricing.Table {
	log := a.logger()
	table := pricing.Default()
	if a.Pricing != nil {
		t, _, err := a.Pricing.RefreshIfDue(ctx, now)
		if err != nil {
			log.Debug("pricing table not refreshed", "error", err)
		}
		table = t
	}
	withMode, err := table.WithWriteMode(a.WriteMode)
	if err != nil {
		log.Warn("ignoring cache write mode", "mode", a.WriteMode, "error", err)
		return table
	}
	return withMode
}

func priced(table *pricing.Table, models map[string]pricing.TokenCounts, stamp int64) Bucket {
	sum := table.Price(models)
	b := Bucket{
		Models:         models,
		Source:         SourceTranscripts,
		UpdatedAt:      stamp,
		MissingPricing: sum.MissingPricing,
	}
	if len(sum.MissingPricing) < len(models) || len(models) == 0 {
		cost := sum.CostUSD
		b.CostUSD = &cost
	}
	return b
}
