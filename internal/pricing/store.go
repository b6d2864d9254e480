package pricing

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/keepwarm/internal/atomicfile"
)

//go:embed defaults.json
var defaultTable []byte

// Refresh policy.
const (
	RefreshAfter = 30 * 24 * time.Hour
	RetryAfter   = 12 * time.Hour
)

// httpClient is a lazily-initialized retryablehttp client shared by every
// pricing refresh.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 10 * time.Second
		httpClient.Logger = nil // suppress retryablehttp's default logging
	})
	return httpClient
}

// Default returns a fresh copy of the embedded pricing table.
func Default() *Table {
	var t Table
	if err := json.Unmarshal(defaultTable, &t); err != nil {
		panic(fmt.Sprintf("embedded pricing table: %v", err))
	}
	t.normalize()
	return &t
}

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store loads, saves and refreshes the pricing file.
type Store struct {
	Path string
	// URL is the pricing page scraped on refresh.
	URL    string
	Logger *slog.Logger

	client *retryablehttp.Client
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Store) transport() *retryablehttp.Client {
	if s.client != nil {
		return s.client
	}
	return getHTTPClient()
}

// Load reads the pricing file. A missing file yields the embedded default
// table; a malformed one is an error so user edits are never discarded.
func (s *Store) Load() (*Table, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", s.Path, err)
	}
	t.normalize()
	return &t, nil
}

// Save writes the table atomically.
func (s *Store) Save(t *Table) error {
	if t == nil {
		return errors.New("pricing table is nil")
	}
	return atomicfile.WriteJSON(s.Path, t, 0o644)
}

// Due reports whether t should be refreshed at now.
func Due(t *Table, now time.Time) bool {
	nowMs := now.UnixMilli()
	return nowMs-t.UpdatedAt > RefreshAfter.Milliseconds() &&
		nowMs-t.LastRefreshAttempt > RetryAfter.Milliseconds()
}

// RefreshIfDue loads the table and, when it is older than [RefreshAfter]
// and no attempt was made within [RetryAfter], scrapes the pricing page.
// Scraped rows replace the matching keys and other keys are kept. On failure
// only LastRefreshAttempt changes. The returned table is always usable, even
// when err is non-nil.
func (s *Store) RefreshIfDue(ctx context.Context, now time.Time) (*Table, bool, error) {
	t, err := s.Load()
	if err != nil {
		return Default(), false, err
	}
	if !Due(t, now) || s.URL == "" {
		return t, false, nil
	}

	t.LastRefreshAttempt = now.UnixMilli()
	rows, fetchErr := s.fetch(ctx)
	if fetchErr == nil {
		for k, r := range rows {
			t.Models[k] = r
		}
		t.UpdatedAt = now.UnixMilli()
		s.logger().Info("pricing table refreshed", "models", len(rows))
	} else {
		s.logger().Warn("pricing refresh failed", "error", fetchErr)
	}

	if err := s.Save(t); err != nil {
		s.logger().Warn("failed to save pricing table", "error", err)
	}
	return t, fetchErr == nil, fetchErr
}

// fetch downloads the pricing page and extracts model rows.
func (s *Store) fetch(ctx context.Context) (map[string]ModelRates, error) {
	const maxResponseBytes = 10 << 20 // 10 MiB

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build pricing request: %w", err)
	}
	resp, err := s.transport().Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", s.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", s.URL, err)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", s.URL, maxResponseBytes)
	}

	rows := ExtractRates(string(body))
	if len(rows) == 0 {
		return nil, errors.New("no model prices found on pricing page")
	}
	return rows, nil
}
