package telegram

import (
	"context"
	"errors"
	"strings"

	"github.com/gotd/td/tgerr"
	apperrors "github.com/teledrive-vn/teledrive/internal/pkg/errors"
)

// FloodWaitSeconds extracts the wait seconds from an RPC rate-limit error
func FloodWaitSeconds(err error) (int, bool) {
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) && rpcErr.Code == 420 {
		return rpcErr.Argument, true
	}
	return 0, false
}

// IsReferenceExpired reports whether the error is a stale file reference
func IsReferenceExpired(err error) bool {
	return tgerr.Is(err, "FILE_REFERENCE_EXPIRED")
}

// IsAuthError reports whether the error means the session is not authorized
func IsAuthError(err error) bool {
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == 401
	}
	return false
}

// isTransient reports whether the error is worth retrying with backoff.
// Parse failures and connection resets fall in this bucket; RPC errors
// other than internal server errors do not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == 500
	}

	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "decode") ||
		strings.Contains(msg, "i/o timeout")
}

// MapError translates a remote error into the application taxonomy.
// Errors already carrying an application code pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if IsAuthError(err) {
		return apperrors.Wrap(err, apperrors.ErrNotAuthenticated)
	}
	if _, ok := FloodWaitSeconds(err); ok {
		return apperrors.Wrap(err, apperrors.ErrFloodWait)
	}
	if IsReferenceExpired(err) {
		return apperrors.Wrap(err, apperrors.ErrReferenceExpired)
	}
	if isTransient(err) {
		return apperrors.Wrap(err, apperrors.ErrTransientNetwork)
	}

	return apperrors.Wrap(err, apperrors.ErrRemoteUnavailable)
}
