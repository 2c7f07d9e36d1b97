package githost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"

	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// StatusError is a non-2xx response from the host.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// classify converts an error from go-github into the syncerr taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return syncerr.Kind(syncerr.ErrNetwork, fmt.Errorf("%s: %w", op, err))
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return syncerr.Kind(syncerr.ErrNetwork, fmt.Errorf("%s: %w", op, err))
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		se := &StatusError{Op: op, Code: respErr.Response.StatusCode, Message: respErr.Message}
		switch code := se.Code; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return syncerr.Kind(syncerr.ErrAuth, se)
		case code == http.StatusNotFound:
			return syncerr.Kind(syncerr.ErrNotFound, se)
		case code >= 500 || code == http.StatusTooManyRequests:
			return syncerr.Kind(syncerr.ErrNetwork, se)
		default:
			return se
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("%s: decode response: %w", op, err))
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return syncerr.Kind(syncerr.ErrNetwork, fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// read runs an idempotent call with a per-call timeout, retrying transient
// failures with exponential backoff.
func (c *Client) read(ctx context.Context, op string, call func(context.Context) error) error {
	delay := c.baseDelay
	for attempt := 1; ; attempt++ {
		err := c.once(ctx, op, call)
		if err == nil || !syncerr.Retryable(err) || attempt >= c.maxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		log.WithError(err).WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
		}).Debug("Retrying remote read")

		select {
		case <-ctx.Done():
			return err
		case <-c.clock.After(delay):
		}
		delay *= 2
	}
}

// write runs a non-idempotent call once with a per-call timeout.
func (c *Client) write(ctx context.Context, op string, call func(context.Context) error) error {
	return c.once(ctx, op, call)
}

func (c *Client) once(ctx context.Context, op string, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := call(callCtx)
	if err != nil && ctx.Err() != nil {
		// The caller gave up; that is not a transport failure.
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return classify(op, err)
}
