package auth

import (
	"math/rand/v2"
	"strings"

	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
)

// PasscodeLength is the number of digits in a passcode.
const PasscodeLength = 6

// ValidatePasscode checks the passcode is exactly six digits.
func ValidatePasscode(passcode string) error {
	if len(passcode) != PasscodeLength {
		return portalerrors.ErrInvalidPasscode
	}
	for _, c := range passcode {
		if c < '0' || c > '9' {
			return portalerrors.ErrInvalidPasscode
		}
	}
	return nil
}

// NormalizeIdentifier trims the login identifier (phone number or email).
func NormalizeIdentifier(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.ContainsAny(identifier, " \t\r\n") {
		return "", portalerrors.ErrInvalidIdentifier
	}
	return identifier, nil
}

// Keypad returns the digits 0-9 in a new random order on every call.
func Keypad() []int {
	return rand.Perm(10)
}
