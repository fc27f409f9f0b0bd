package screen

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

// backend runs a platform screenshot tool that writes an image file.
type backend interface {
	name() string
	shoot(ctx context.Context, path string) error
}

// CommandCapturer shells out to the platform screenshot tool and crops the result.
// It is the fallback when in-process capture is unavailable (e.g. Wayland sessions).
type CommandCapturer struct {
	backend
	tempDir string
}

// NewCommandCapturer creates a capturer for the current platform.
func NewCommandCapturer() (*CommandCapturer, error) {
	b, err := platformBackend()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "livetranslate-screen-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "create temp dir")
	}
	return &CommandCapturer{backend: b, tempDir: dir}, nil
}

// Capture runs the tool, decodes the file and crops it to region. The tool always grabs the
// full desktop whose top-left is assumed to be the screen origin.
func (c *CommandCapturer) Capture(ctx context.Context, region image.Rectangle) (*Frame, error) {
	path := filepath.Join(c.tempDir, "frame.png")
	defer os.Remove(path)

	if err := c.shoot(ctx, path); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, c.name()+" failed")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "read screenshot")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "decode screenshot")
	}
	return crop(img, region)
}

// Close removes the temp directory.
func (c *CommandCapturer) Close() error {
	if err := os.RemoveAll(c.tempDir); err != nil {
		slog.Warn("failed to remove capture temp dir", "dir", c.tempDir, "error", err)
		return err
	}
	return nil
}

func crop(img image.Image, region image.Rectangle) (*Frame, error) {
	if region.Empty() {
		return NewFrame(img, img.Bounds().Min), nil
	}
	r := region.Intersect(img.Bounds())
	if r.Empty() {
		return nil, apperrors.Newf(apperrors.InvalidArgument, "region %v outside screen %v", region, img.Bounds())
	}
	return NewFrame(subImage(img, r), r.Min), nil
}

func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	return img
}
