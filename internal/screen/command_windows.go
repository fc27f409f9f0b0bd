//go:build windows

package screen

import apperrors "github.com/fntranslate/livetranslate/internal/errors"

// Windows has no stock CLI screenshot tool; use the in-process backend.
func platformBackend() (backend, error) {
	return nil, apperrors.New(apperrors.InvalidArgument, "command capture backend unsupported on windows, use LT_CAPTURE_BACKEND=screenshot")
}
