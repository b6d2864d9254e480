package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnavailable means the keychain tool is not installed (any non-macOS host).
var ErrUnavailable = errors.New("security command unavailable")

type runFunc func(ctx context.Context, args ...string) (stdout string, stderr string, err error)

// Keychain reads the credentials item from the macOS login keychain with the
// security(1) tool.
type Keychain struct {
	Service string
	run     runFunc
}

var _ Source = (*Keychain)(nil)

// NewKeychain returns a Keychain reading the generic password named service.
func NewKeychain(service string) *Keychain {
	return &Keychain{Service: service, run: runSecurity}
}

// Token implements [Source].
func (k *Keychain) Token(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	stdout, stderr, err := k.run(ctx, "find-generic-password", "-s", k.Service, "-w")
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return Token{}, fmt.Errorf("keychain: %w: %w", ErrNotFound, err)
		}
		// security exits 44 when the item does not exist.
		if strings.Contains(stderr, "could not be found") {
			return Token{}, fmt.Errorf("keychain %q: %w", k.Service, ErrNotFound)
		}
		if stderr != "" {
			return Token{}, fmt.Errorf("keychain %q: %w: %s", k.Service, err, stderr)
		}
		return Token{}, fmt.Errorf("keychain %q: %w", k.Service, err)
	}
	return parseBlob(stdout, "keychain")
}

func runSecurity(ctx context.Context, args ...string) (string, string, error) {
	path, err := exec.LookPath("security")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate security command: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
