package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/keepwarm/internal/credentials"
)

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// BetaHeader is the anthropic-beta value the OAuth usage endpoint requires.
const BetaHeader = "oauth-2025-04-20"

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Client fetches usage limits, falling back to cached values.
type Client struct {
	endpoint    string
	credentials credentials.Source
	cachePath   string
	legacy      []string
	timeout     time.Duration
	http        *retryablehttp.Client
	logger      *slog.Logger
	now         func() time.Time
}

// ClientConfig configures [NewClient].
type ClientConfig struct {
	Endpoint     string
	Credentials  credentials.Source
	CachePath    string
	LegacyCaches []string
	// Timeout bounds the whole request, retries included. Defaults to 10s.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewClient builds a Client with a retrying HTTP transport.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = 250 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.HTTPClient.Timeout = timeout
	hc.Logger = nil // suppress retryablehttp's default logging

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		credentials: cfg.Credentials,
		cachePath:   cfg.CachePath,
		legacy:      cfg.LegacyCaches,
		timeout:     timeout,
		http:        hc,
		logger:      logger.With("component", "limits"),
		now:         now,
	}
}

// Options controls cache acceptance for one [Client.Fetch].
type Options struct {
	// MaxAge is the age beyond which cached limits are stale.
	MaxAge time.Duration
	// AllowStale returns stale cached limits instead of none.
	AllowStale bool
}

// Fetch obtains the current limits. A token is looked up first; with a token
// the endpoint is queried and a successful answer is cached and returned as
// fresh. A token whose recorded expiry has passed is reported as expired
// without a request. Without a token, or when the request fails, the cache
// decides.
func (c *Client) Fetch(ctx context.Context, opts Options) Result {
	var res Result

	tok, err := c.token(ctx)
	if err != nil {
		c.logger.Debug("no oauth credential", "error", err)
		res.Status = NoCredential
	} else {
		var limits *Limits
		if !tok.ExpiresAt.IsZero() && !c.now().Before(tok.ExpiresAt) {
			err = fmt.Errorf("token from %s expired at %s: %w", tok.Source, tok.ExpiresAt.Format(time.RFC3339), ErrTokenExpired)
		} else {
			limits, err = c.fetchLive(ctx, tok.AccessToken)
		}
		switch {
		case err == nil:
			now := c.now()
			if c.cachePath != "" {
				if werr := WriteCache(c.cachePath, *limits, now); werr != nil {
					c.logger.Warn("failed to write limits cache", "error", werr)
				}
			}
			return Result{
				Status:    LiveFetchOK,
				Cache:     CacheUnused,
				Limits:    limits,
				FetchedAt: now,
				Source:    "live",
			}
		case errors.Is(err, ErrTokenExpired):
			c.logger.Info("oauth token expired", "source", tok.Source)
			res.Status = TokenExpired
		default:
			c.logger.Warn("usage limits request failed", "error", err)
			res.Status = LiveFetchFailed
		}
		res.Err = err
	}

	return c.fromCache(res, opts)
}

func (c *Client) token(ctx context.Context) (credentials.Token, error) {
	if c.credentials == nil {
		return credentials.Token{}, credentials.ErrNotFound
	}
	return c.credentials.Token(ctx)
}

// fromCache fills res from the cache files according to opts.
func (c *Client) fromCache(res Result, opts Options) Result {
	entry, path, ok := lookupCache(c.cachePath, c.legacy)
	if !ok {
		res.Cache = CacheMiss
		c.logger.Debug("no limits cache")
		return res
	}

	res.FetchedAt = entry.FetchedAt()
	res.Age = max(c.now().Sub(res.FetchedAt), 0)
	res.Source = path
	res.Stale = res.Age > opts.MaxAge
	if !res.Stale {
		res.Cache = CacheFresh
	} else {
		res.Cache = CacheStale
		if !opts.AllowStale {
			c.logger.Debug("limits cache stale", "path", path, "age", res.Age)
			return res
		}
	}
	limits := entry.Limits
	res.Limits = &limits
	return res
}

// fetchLive performs the authenticated GET.
func (c *Client) fetchLive(ctx context.Context, token string) (*Limits, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("anthropic-beta", BetaHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "keepwarm")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read usage response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || (resp.StatusCode >= 300 && mentionsBadToken(body)) {
		return nil, fmt.Errorf("usage endpoint returned HTTP %d: %w", resp.StatusCode, ErrTokenExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("usage endpoint returned HTTP %d: %s", resp.StatusCode, summarizeBody(body))
	}

	var limits Limits
	if err := json.Unmarshal(body, &limits); err != nil {
		return nil, fmt.Errorf("decode usage response: %w", err)
	}
	if limits.Empty() {
		return nil, errors.New("usage response has no limit windows")
	}
	return &limits, nil
}

// mentionsBadToken reports whether an error body complains about the token.
func mentionsBadToken(body []byte) bool {
	s := strings.ToLower(string(body))
	if !strings.Contains(s, "token") {
		return false
	}
	return strings.Contains(s, "expired") || strings.Contains(s, "invalid")
}

func summarizeBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
