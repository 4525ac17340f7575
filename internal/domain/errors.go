package domain

import "errors"

var (
	// Bad input rejected before any external call.
	ErrValidation = errors.New("validation failed")
	// Provider non-success, timeout, open circuit or malformed payload.
	ErrUpstreamUnavailable = errors.New("routing provider unavailable")
	// Provider answered but returned zero routes.
	ErrNoRouteFound = errors.New("no route found")
	// Store unavailable during a read or write.
	ErrPersistence = errors.New("persistence failure")

	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsMiss reports whether err is a routing failure that degrades to "no route".
func IsMiss(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrNoRouteFound)
}
