// Package limits fetches the account's rolling usage-limit windows from the
// OAuth usage endpoint and keeps an on-disk cache used when the endpoint or
// the credentials are unavailable.
package limits

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// ErrTokenExpired marks a fetch rejected because the OAuth token is no longer
// valid. The user has to sign in again through the desktop app.
var ErrTokenExpired = errors.New("oauth token expired")

// UsageLimit is one rate-limit window.
type UsageLimit struct {
	// Utilization is the percentage of the window consumed. NaN when the
	// endpoint reported null.
	Utilization float64
	// ResetsAt is nil when the window has not started.
	ResetsAt *time.Time
}

type usageLimitJSON struct {
	Utilization *float64   `json:"utilization"`
	ResetsAt    *time.Time `json:"resets_at"`
}

// UnmarshalJSON decodes a null utilization as NaN so it is never mistaken
// for an empty window.
func (u *UsageLimit) UnmarshalJSON(b []byte) error {
	var raw usageLimitJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	u.Utilization = math.NaN()
	if raw.Utilization != nil {
		u.Utilization = *raw.Utilization
	}
	u.ResetsAt = raw.ResetsAt
	return nil
}

// MarshalJSON writes non-finite utilization as null.
func (u UsageLimit) MarshalJSON() ([]byte, error) {
	raw := usageLimitJSON{ResetsAt: u.ResetsAt}
	if !math.IsNaN(u.Utilization) && !math.IsInf(u.Utilization, 0) {
		raw.Utilization = &u.Utilization
	}
	return json.Marshal(raw)
}

// Limits holds both windows reported by the endpoint.
type Limits struct {
	FiveHour *UsageLimit `json:"five_hour"`
	SevenDay *UsageLimit `json:"seven_day"`
}

// LimitOK reports whether a window still has headroom: the utilization is
// finite and below 100. A nil window is not ok.
func LimitOK(l *UsageLimit) bool {
	if l == nil {
		return false
	}
	u := l.Utilization
	return !math.IsNaN(u) && !math.IsInf(u, 0) && u < 100
}

// OK reports whether both windows have headroom.
func (l *Limits) OK() bool {
	return l != nil && LimitOK(l.FiveHour) && LimitOK(l.SevenDay)
}

// Empty reports whether neither window is present.
func (l *Limits) Empty() bool {
	return l == nil || (l.FiveHour == nil && l.SevenDay == nil)
}

// ///////////////////////////////////////////////
// Fetch Outcome
// ///////////////////////////////////////////////

// Status describes what happened to the live request.
type Status int

const (
	NoCredential Status = iota
	LiveFetchOK
	LiveFetchFailed
	TokenExpired
)

var statusNames = [...]string{"no-credential", "live", "live-failed", "token-expired"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CacheState describes the cache lookup performed after a failed or skipped
// live request.
type CacheState int

const (
	// CacheUnused means the live request succeeded.
	CacheUnused CacheState = iota
	CacheFresh
	CacheStale
	CacheMiss
)

var cacheNames = [...]string{"unused", "fresh", "stale", "miss"}

func (c CacheState) String() string {
	if int(c) < len(cacheNames) {
		return cacheNames[c]
	}
	return fmt.Sprintf("cache(%d)", int(c))
}

// Result is the outcome of [Client.Fetch].
type Result struct {
	Status Status
	Cache  CacheState
	// Limits is nil only when no usable signal exists.
	Limits *Limits
	// FetchedAt is when the limits were obtained from the endpoint.
	FetchedAt time.Time
	Age       time.Duration
	Stale     bool
	// Source is "live" or the path of the cache file used.
	Source string
	// Err is the live request failure, if any. Wraps [ErrTokenExpired] for
	// TokenExpired.
	Err error
}

// Fresh reports whether usable, non-stale limits are present.
func (r Result) Fresh() bool {
	return r.Limits != nil && !r.Stale
}
