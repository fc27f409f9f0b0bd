//go:build linux

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

type linuxBackend struct{ tool string }

func platformBackend() (backend, error) {
	for _, tool := range []string{"gnome-screenshot", "scrot", "grim"} {
		if _, err := exec.LookPath(tool); err == nil {
			return &linuxBackend{tool: tool}, nil
		}
	}
	return nil, apperrors.New(apperrors.InvalidArgument, "no screenshot tool found (install gnome-screenshot, scrot or grim)")
}

func (l *linuxBackend) name() string { return l.tool }

func (l *linuxBackend) shoot(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch l.tool {
	case "gnome-screenshot":
		cmd = exec.CommandContext(ctx, l.tool, "-f", path)
	case "scrot":
		cmd = exec.CommandContext(ctx, l.tool, "-o", path)
	default:
		cmd = exec.CommandContext(ctx, l.tool, path)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}
