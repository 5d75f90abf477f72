package errors

import (
	"errors"
	"fmt"
)

// Bridge errors shared by the upstream, pin and interaction packages
var (
	// Upstream session errors
	ErrCaptchaDetected      = errors.New("captcha detected on upstream login")
	ErrAuthenticationFailed = errors.New("upstream authentication failed")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")

	// Subject / delivery errors
	ErrRecipientUnresolvable = errors.New("recipient unresolvable")
	ErrSubjectUnknown        = errors.New("subject unknown")
	ErrDeliveryFailed        = errors.New("pin delivery failed")

	// Interaction errors
	ErrPinMismatch            = errors.New("pin mismatch")
	ErrUnauthenticatedConsent = errors.New("consent requested without an authenticated account")
)

// Protocol engine errors
var (
	ErrInteractionNotFound = errors.New("interaction not found")
	ErrInteractionExpired  = errors.New("interaction expired")
	ErrInvalidToken        = errors.New("invalid token")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
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
