//go:build !darwin

package keepalive

import "context"

// Open always fails with [ErrUnsupported].
func (SystemOpener) Open(context.Context, string) error {
	return ErrUnsupported
}
