package keepalive

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by [SystemOpener] on platforms without an
// "open application" command.
var ErrUnsupported = errors.New("opening applications is not supported on this platform")

// AppOpener brings up a desktop application by name.
type AppOpener interface {
	Open(ctx context.Context, app string) error
}

// SystemOpener opens applications with the operating system's launcher.
type SystemOpener struct{}
