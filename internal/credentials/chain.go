package credentials

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each source in order and returns the first token found.
type Chain struct {
	sources []Source
}

var _ Source = (*Chain)(nil)

var errNilSource = errors.New("credential source is nil")

// NewChain builds a Chain. It panics on a nil source.
func NewChain(sources ...Source) *Chain {
	for _, s := range sources {
		if s == nil {
			panic(errNilSource)
		}
	}
	return &Chain{sources: sources}
}

// Default returns the keychain-then-file chain.
func Default(keychainService, credentialsFile string) *Chain {
	return NewChain(NewKeychain(keychainService), File{Path: credentialsFile})
}

// Token implements [Source]. Cancellation stops the chain immediately; when
// every source fails the per-source errors are joined.
func (c *Chain) Token(ctx context.Context) (Token, error) {
	var errs []error
	for _, s := range c.sources {
		tok, err := s.Token(ctx)
		if err == nil {
			return tok, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Token{}, err
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Token{}, ErrNotFound
	}
	return Token{}, fmt.Errorf("credential lookup failed: %w", errors.Join(errs...))
}
