//go:build !linux && !darwin && !windows

package screen

import apperrors "github.com/fntranslate/livetranslate/internal/errors"

func platformBackend() (backend, error) {
	return nil, apperrors.New(apperrors.InvalidArgument, "command capture backend unsupported on this platform")
}
