package requestpool

import "errors"

// Domain errors for the requestpool package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, requestpool.ErrRequestNotFound) {
//	    // stale or duplicate acknowledgement
//	}
var (
	// ErrRequestNotFound is returned when a request ID does not exist.
	// Callers treat this as "already resolved or expired", not a failure.
	ErrRequestNotFound = errors.New("requestpool: not found")

	// ErrInvalidOrigin is returned when an origin's tag and payload disagree.
	ErrInvalidOrigin = errors.New("requestpool: invalid origin")
)
