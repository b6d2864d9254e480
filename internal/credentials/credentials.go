// Package credentials looks up the Claude Code OAuth access token: first in
// the macOS keychain, then in the credentials file Claude Code writes on
// other platforms.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when a source holds no usable token.
var ErrNotFound = errors.New("oauth token not found")

// Token is an OAuth access token and where it came from.
type Token struct {
	AccessToken string
	// ExpiresAt is zero when the source does not record an expiry.
	ExpiresAt time.Time
	Source    string
}

// Source yields a token or an error wrapping [ErrNotFound].
type Source interface {
	Token(ctx context.Context) (Token, error)
}

// parseBlob extracts the token from the JSON document Claude Code stores
// under both the keychain item and the credentials file.
func parseBlob(raw, source string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, fmt.Errorf("%s: %w", source, ErrNotFound)
	}
	if !gjson.Valid(raw) {
		// Older installs stored the bare token.
		if strings.ContainsAny(raw, " \n\t{") {
			return Token{}, fmt.Errorf("%s: unrecognised credential format", source)
		}
		return Token{AccessToken: raw, Source: source}, nil
	}

	oauth := gjson.Get(raw, "claudeAiOauth")
	access := strings.TrimSpace(oauth.Get("accessToken").String())
	if access == "" {
		return Token{}, fmt.Errorf("%s: claudeAiOauth.accessToken: %w", source, ErrNotFound)
	}
	tok := Token{AccessToken: access, Source: source}
	if ms := oauth.Get("expiresAt").Int(); ms > 0 {
		tok.ExpiresAt = time.UnixMilli(ms)
	}
	return tok, nil
}
