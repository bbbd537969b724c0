package main

import (
	"context"
	"errors"

	"github.com/depgate-dev/depgate/internal/apperrors"
)

// exitCodeFromError maps a typed apperrors cause to the §6 exit code
// contract: 1 file-error, 2 connection-error, 3 package-not-found.
// context.Canceled (Ctrl-C) maps to 130, the conventional SIGINT code.
func exitCodeFromError(err error) (int, bool) {
	if errors.Is(err, context.Canceled) {
		return 130, true
	}

	var fileErr *apperrors.FileError
	if errors.As(err, &fileErr) {
		return 1, true
	}
	var parseErr *apperrors.ParseError
	if errors.As(err, &parseErr) {
		return 1, true
	}
	var configErr *apperrors.ConfigError
	if errors.As(err, &configErr) {
		return 1, true
	}

	var netErr *apperrors.NetworkError
	if errors.As(err, &netErr) {
		return 2, true
	}

	var notFoundErr *apperrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		return 3, true
	}

	return 0, false
}
