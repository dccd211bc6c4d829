package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session coordinator
var (
	// Resolution errors
	ErrTransientLookup  = errors.New("transient profile lookup failure")
	ErrIdentityMismatch = errors.New("resolution target no longer matches current session")
	ErrRefreshToken     = errors.New("refresh token invalid or expired")

	// Profile errors
	ErrProfileNotFound = errors.New("profile not found")

	// Subscription errors
	ErrSubscription       = errors.New("live-update subscription failure")
	ErrChannelUnavailable = errors.New("live channel unavailable")

	// Provider errors
	ErrNoSession       = errors.New("no active session")
	ErrProviderStopped = errors.New("identity provider stopped")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
