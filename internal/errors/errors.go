package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal gateway
var (
	// Provisioning errors
	ErrAPITokenUnavailable = errors.New("api token unavailable")

	// Authentication errors
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrInvalidPasscode        = errors.New("passcode must be 6 digits")
	ErrInvalidIdentifier      = errors.New("invalid login identifier")
	ErrInvalidTransition      = errors.New("invalid authentication transition")

	// Session errors
	ErrSessionExpired = errors.New("session expired")
	ErrRefreshFailed  = errors.New("session refresh failed")

	// Transport errors
	ErrTransport          = errors.New("utility api unreachable")
	ErrUnexpectedResponse = errors.New("unexpected utility api response")

	// Social login errors
	ErrUnknownProvider = errors.New("unknown social provider")
	ErrInvalidState    = errors.New("invalid social login state")
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

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
