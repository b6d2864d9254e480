package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// File reads the JSON credentials file (~/.claude/.credentials.json).
type File struct {
	Path string
}

var _ Source = File{}

// Token implements [Source]. A missing file wraps [ErrNotFound].
func (f File) Token(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Token{}, fmt.Errorf("credentials file %s: %w", f.Path, ErrNotFound)
	}
	if err != nil {
		return Token{}, fmt.Errorf("read credentials file: %w", err)
	}
	return parseBlob(string(data), "file")
}
