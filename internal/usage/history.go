// Package usage aggregates token usage and cost per day and month, from an
// external cost tool when one is installed and from the transcripts
// otherwise, and keeps a trimmed history of the results.
package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"tools.zach/dev/keepwarm/internal/atomicfile"
	"tools.zach/dev/keepwarm/internal/migrate"
	"tools.zach/dev/keepwarm/internal/pricing"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Key layouts for daily and monthly buckets. Lexicographic order of keys is
// chronological order.
const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Retention limits.
const (
	MaxDaily   = 120
	MaxMonthly = 24
)

// Period selects the daily or monthly series.
type Period int

const (
	Daily Period = iota
	Monthly
)

// Layout returns the key layout of p.
func (p Period) Layout() string {
	if p == Monthly {
		return MonthLayout
	}
	return DayLayout
}

// Bucket is one day's or month's usage.
type Bucket struct {
	Models map[string]pricing.TokenCounts `json:"models"`
	// CostUSD is nil when no model could be priced.
	CostUSD        *float64 `json:"costUSD,omitempty"`
	Source         string   `json:"source"`
	UpdatedAt      int64    `json:"updatedAt"`
	MissingPricing []string `json:"missingPricing,omitempty"`
}

// Cost returns the bucket's cost, zero when unknown.
func (b Bucket) Cost() float64 {
	if b.CostUSD == nil {
		return 0
	}
	return *b.CostUSD
}

// Tokens returns the total tokens across models.
func (b Bucket) Tokens() int64 {
	var n int64
	for _, c := range b.Models {
		n += c.Total()
	}
	return n
}

// Totals is a snapshot of today's figures taken at the previous refresh.
type Totals struct {
	Date    string  `json:"date"`
	CostUSD float64 `json:"costUSD"`
	Tokens  int64   `json:"tokens"`
}

// History is the usage-history file.
type History struct {
	Version     int               `json:"version"`
	Daily       map[string]Bucket `json:"daily"`
	Monthly     map[string]Bucket `json:"monthly"`
	LastUpdated int64             `json:"lastUpdated"`
	LastTotals  *Totals           `json:"lastTotals,omitempty"`
}

// NewHistory returns an empty history at the current schema version.
func NewHistory() *History {
	return &History{
		Version: migrate.History.CurrentVersion,
		Daily:   map[string]Bucket{},
		Monthly: map[string]Bucket{},
	}
}

// ///////////////////////////////////////////////
// Bucket Rules
// ///////////////////////////////////////////////

func (h *History) series(p Period) map[string]Bucket {
	if p == Monthly {
		return h.Monthly
	}
	return h.Daily
}

// Apply stores b under key. Buckets for periods that have ended (key before
// the current period at now) are written once and never replaced; the
// current period's bucket is replaced on every call. It reports whether b
// was stored.
func (h *History) Apply(now time.Time, p Period, key string, b Bucket) bool {
	series := h.series(p)
	open := now.Format(p.Layout())
	if _, exists := series[key]; exists && key < open {
		return false
	}
	series[key] = b
	return true
}

// Trim drops the oldest buckets beyond [MaxDaily] and [MaxMonthly].
func (h *History) Trim() {
	trim(h.Daily, MaxDaily)
	trim(h.Monthly, MaxMonthly)
}

func trim(series map[string]Bucket, limit int) {
	if len(series) <= limit {
		return
	}
	keys := lo.Keys(series)
	slices.Sort(keys)
	for _, k := range keys[:len(keys)-limit] {
		delete(series, k)
	}
}

// Today returns the bucket for now's day.
func (h *History) Today(now time.Time) (Bucket, bool) {
	b, ok := h.Daily[now.Format(DayLayout)]
	return b, ok
}

// Month returns the bucket for now's month.
func (h *History) Month(now time.Time) (Bucket, bool) {
	b, ok := h.Monthly[now.Format(MonthLayout)]
	return b, ok
}

// Delta returns today's cost change since the previous refresh. ok is false
// when there is no snapshot for today.
func (h *History) Delta(now time.Time) (float64, bool) {
	today := now.Format(DayLayout)
	if h.LastTotals == nil || h.LastTotals.Date != today {
		return 0, false
	}
	b, ok := h.Daily[today]
	if !ok {
		return 0, false
	}
	return b.Cost() - h.LastTotals.CostUSD, true
}

// snapshot records today's current totals as LastTotals.
func (h *History) snapshot(now time.Time) {
	today := now.Format(DayLayout)
	if b, ok := h.Daily[today]; ok {
		h.LastTotals = &Totals{Date: today, CostUSD: b.Cost(), Tokens: b.Tokens()}
	}
}

// ///////////////////////////////////////////////
// Persistence
// ///////////////////////////////////////////////

// LoadHistory reads the history file, upgrading older schema versions. A
// missing file yields an empty history.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewHistory(), nil
	}
	if err != nil {
		return NewHistory(), fmt.Errorf("read usage history: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return NewHistory(), fmt.Errorf("parse usage history %s: invalid JSON", path)
	}

	version := int(gjson.GetBytes(data, "version").Int())
	if migrate.History.NeedsMigration(version) {
		data, err = migrate.History.Upgrade(data, version)
		if err != nil {
			return NewHistory(), err
		}
	}

	h := NewHistory()
	if err := json.Unmarshal(data, h); err != nil {
		return NewHistory(), fmt.Errorf("parse usage history %s: %w", path, err)
	}
	if h.Daily == nil {
		h.Daily = map[string]Bucket{}
	}
	if h.Monthly == nil {
		h.Monthly = map[string]Bucket{}
	}
	h.Version = migrate.History.CurrentVersion
	return h, nil
}

// Save writes the history atomically.
func (h *History) Save(path string) error {
	return atomicfile.WriteJSON(path, h, 0o644)
}
