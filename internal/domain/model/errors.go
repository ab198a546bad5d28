package model

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the proxy's failure taxonomy. Adapters wrap these
// (usually inside an UpstreamError) so callers can branch with errors.Is.
var (
	// ErrInvalidQuery rejects caller input before any network call.
	ErrInvalidQuery = errors.New("search query must be at least 3 characters")

	// ErrUnauthenticated means no usable credential was available for an
	// authenticated upstream call.
	ErrUnauthenticated = errors.New("no valid credential available")

	// ErrMissingRefreshToken means a refresh was requested for a credential
	// that has no refresh token to exchange.
	ErrMissingRefreshToken = errors.New("credential has no refresh token")

	// ErrRateLimited maps the upstream's fixed quota (90 requests/hour).
	ErrRateLimited = errors.New("upstream rate limit reached (90 requests/hour)")

	// ErrBadRequest maps an upstream 400 for a request the proxy forwarded.
	ErrBadRequest = errors.New("upstream rejected the request parameters")

	// ErrUnreachable covers connectivity failures and timeouts.
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrNotFound means the player does not exist upstream; rating existence
	// is the existence check for a player.
	ErrNotFound = errors.New("player not found")

	// ErrRefreshRejected means the auth endpoint refused the refresh exchange.
	ErrRefreshRejected = errors.New("upstream rejected the refresh exchange")

	// ErrUpstreamFault classifies any other non-2xx upstream response.
	ErrUpstreamFault = errors.New("upstream returned an error status")
)

// UpstreamError carries the upstream status and body for diagnostics while
// wrapping the taxonomy sentinel that classifies the failure.
type UpstreamError struct {
	Op     string // logical operation, e.g. "search players"
	Status int    // upstream HTTP status; 0 for transport failures
	Body   string // truncated upstream response body
	Err    error  // taxonomy sentinel or transport error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
