// Package syncerr defines the error taxonomy shared by the sync engine.
// All errors can be checked using errors.Is().
package syncerr

import (
	"errors"
	"fmt"
)

// ErrAuth is returned when the credential is missing, invalid or expired.
// It is fatal for the whole sync and is never retried.
var ErrAuth = errors.New("authentication failed")

// ErrNotFound is returned for absent remote paths and refs. The sync engine
// treats it as empty state.
var ErrNotFound = errors.New("not found")

// ErrRefConflict is returned when the tracked branch moved after it was read.
var ErrRefConflict = errors.New("branch moved concurrently")

// ErrPartialPublish is returned when a blob, tree or commit call failed part
// way through a push.
var ErrPartialPublish = errors.New("publish failed part way")

// ErrEncoding is returned when content cannot be represented in the transport
// encoding, or when a remote payload has an unexpected shape.
var ErrEncoding = errors.New("encoding error")

// ErrNetwork is returned for transient transport failures.
var ErrNetwork = errors.New("network error")

// ErrSyncInProgress is returned when a sync is requested while another one
// is running.
var ErrSyncInProgress = errors.New("a sync is already in progress")

// WrapError wraps err with msg while keeping it matchable with errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf is WrapError with a format string.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Kind tags err with one of the sentinels above, keeping the original error in
// the chain as well.
func Kind(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// Retryable reports whether err is a transient failure that an idempotent
// read may retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) && !errors.Is(err, ErrAuth)
}

// Summary returns a one line, human readable description of a failed sync.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrSyncInProgress):
		return "Another sync is still running. Wait for it to finish and try again."
	case errors.Is(err, ErrAuth):
		return fmt.Sprintf("The Git host rejected the access token: %s", err)
	case errors.Is(err, ErrRefConflict):
		return "The branch changed on the remote while pushing. Nothing was overwritten; run the push again."
	case errors.Is(err, ErrEncoding):
		return fmt.Sprintf("A document or remote payload could not be encoded: %s", err)
	case errors.Is(err, ErrPartialPublish):
		return fmt.Sprintf("Publishing to the remote failed part way; the branch was not changed: %s", err)
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("The repository or branch was not found, or the token cannot see it: %s", err)
	case errors.Is(err, ErrNetwork):
		return fmt.Sprintf("The Git host could not be reached: %s", err)
	default:
		return fmt.Sprintf("Sync failed: %s", err)
	}
}
