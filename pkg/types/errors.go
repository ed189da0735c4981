package types

import (
	"errors"
	"fmt"
)

// Venue error kinds.
const (
	VenueErrHTTP            = "HTTP"
	VenueErrDecode          = "DECODE"
	VenueErrNotFound        = "NOT_FOUND"
	VenueErrInvalidResponse = "INVALID_RESPONSE"
)

// VenueError represents a failure while talking to the venue API.
type VenueError struct {
	Kind   string // HTTP, DECODE, NOT_FOUND, INVALID_RESPONSE
	Op     string // request description, e.g. "GET /markets"
	Status int    // HTTP status code when Kind == HTTP
	Err    error  // underlying cause, may be nil
}

func (e *VenueError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("venue %s failed (%s, status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("venue %s failed (%s): %v", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("venue %s failed (%s)", e.Op, e.Kind)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// IsVenueNotFound reports whether err is a venue 404.
func IsVenueNotFound(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Kind == VenueErrNotFound
}

// Sentinel errors shared across packages. Callers match with errors.Is
// after any number of fmt.Errorf("%w") wrappings.
var (
	// ErrNotFound is returned by storage point lookups when no row exists.
	ErrNotFound = errors.New("not found")

	// ErrMissingQuote is returned by scoring when a required NO-side price
	// is absent from the quote.
	ErrMissingQuote = errors.New("missing quote")

	// ErrInvalidMarket is returned by scoring when a market has no close
	// time or its time to expiry is outside the eligibility window.
	ErrInvalidMarket = errors.New("invalid market")
)
