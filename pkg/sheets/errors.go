package sheets

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrRateLimited marks a request rejected for exceeding the quota.
	ErrRateLimited = errors.New("sheets: rate limited")

	ErrTableNotFound = errors.New("sheets: table not found")
)

// GatewayError carries the failed operation and the underlying cause.
type GatewayError struct {
	Op       string
	Table    string
	Attempts int
	Err      error
}

func (e *GatewayError) Error() string {
	msg := "sheets: " + e.Op
	if e.Table != "" {
		msg += " " + e.Table
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is the retryable too-many-requests class.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	if gErr.Code == http.StatusTooManyRequests {
		return true
	}
	if gErr.Code == http.StatusForbidden {
		for _, item := range gErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}
