//go:build darwin

package keepalive

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Open runs `open -a app`.
func (SystemOpener) Open(ctx context.Context, app string) error {
	out, err := exec.CommandContext(ctx, "open", "-a", app).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("open -a %s: %w: %s", app, err, msg)
		}
		return fmt.Errorf("open -a %s: %w", app, err)
	}
	return nil
}
