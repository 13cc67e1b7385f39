package misskey

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"hbdbot/pkg/hbd"
)

// Error codes returned by the Misskey API that the bot handles specially.
const (
	CodeAlreadyReacted = "ALREADY_REACTED"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
)

// errMalformed marks a response body that could not be decoded.
var errMalformed = errors.New("malformed response")

// APIError is an error response from the Misskey API.
type APIError struct {
	Endpoint string
	Code     string
	Message  string
	ID       string
	Status   int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.Endpoint, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.Status)
}

// Unwrap maps well-known responses to the shared sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == CodeAlreadyReacted:
		return hbd.ErrAlreadyReacted
	case e.Code == CodeRateLimited, e.Status == http.StatusTooManyRequests:
		return hbd.ErrRateLimited
	default:
		return nil
	}
}

// Temporary reports whether the server failed rather than rejected the request.
func (e *APIError) Temporary() bool {
	return e.Status >= 500
}

// IsAPIError checks if an error is a Misskey API error and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// retryable reports whether a read should be attempted again.
// Timeouts are not retried: pollers treat them as an empty result.
func retryable(err error) bool {
	if errors.Is(err, hbd.ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, errMalformed) {
		return false
	}
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.Temporary()
	}
	return true
}

// classify maps transport failures to hbd.ErrTimeout.
func classify(ctx context.Context, endpoint string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", endpoint, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", endpoint, hbd.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", endpoint, hbd.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", endpoint, err)
}
