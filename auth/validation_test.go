package auth_test

import (
	"slices"
	"testing"

	"github.com/jrsteele09/go-utility-portal/auth"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestValidatePasscode(t *testing.T) {
	require.NoError(t, auth.ValidatePasscode("123456"))
	require.NoError(t, auth.ValidatePasscode("000000"))

	for _, bad := range []string{"", "12345", "1234567", "12a456", " 12345", "１２３４５６"} {
		require.ErrorIs(t, auth.ValidatePasscode(bad), portalerrors.ErrInvalidPasscode, bad)
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	got, err := auth.NormalizeIdentifier("  user@x.com ")
	require.NoError(t, err)
	require.Equal(t, "user@x.com", got)

	for _, bad := range []string{"", "   ", "07 00 00"} {
		_, err := auth.NormalizeIdentifier(bad)
		require.ErrorIs(t, err, portalerrors.ErrInvalidIdentifier, bad)
	}
}

func TestKeypad(t *testing.T) {
	keypad := auth.Keypad()
	require.Len(t, keypad, 10)

	sorted := slices.Clone(keypad)
	slices.Sort(sorted)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sorted)
}
