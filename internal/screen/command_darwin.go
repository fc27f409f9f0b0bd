//go:build darwin

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

type darwinBackend struct{}

func platformBackend() (backend, error) { return darwinBackend{}, nil }

func (darwinBackend) name() string { return "screencapture" }

// shoot uses -x (silent), -t png and -m (main display).
func (darwinBackend) shoot(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-m", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}
