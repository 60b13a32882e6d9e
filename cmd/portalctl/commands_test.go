package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-utility-portal/internal/utils"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/jrsteele09/go-utility-portal/utilityapi/apifake"
	"github.com/stretchr/testify/require"
)

const (
	testLogin    = "0700000001"
	testPasscode = "123456"
)

type testFixture struct {
	api   *apifake.FakeUtilityAPI
	store string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	api := apifake.NewFakeUtilityAPI(t)
	api.AddAccount(testLogin, testPasscode, utilityapi.User{ID: "9", FirstName: utils.Ptr("Mariam")})
	t.Setenv("UTILITY_API_URL", api.URL())
	t.Setenv("UTILITY_API_KEY", apifake.DefaultAPIKey)
	return &testFixture{api: api, store: filepath.Join(t.TempDir(), "credentials.json")}
}

func (f *testFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-store", f.store}, args...), strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "not logged in")

	out, err = f.run(t, testPasscode+"\n", "login", "-id", testLogin)
	require.NoError(t, err)
	require.Contains(t, out, "logged in as Mariam")

	// a new process reads the same credential file
	out, err = f.run(t, "", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Mariam ("+testLogin+")")

	out, err = f.run(t, "", "call", "/bills")
	require.NoError(t, err)
	require.Contains(t, out, `"login":"`+testLogin+`"`)

	out, err = f.run(t, "", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "logged out")
	require.Equal(t, 1, f.api.Calls(utilityapi.PathLogout))

	out, err = f.run(t, "", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "not logged in")

	// the api token survives logout and is not requested again
	require.Equal(t, 1, f.api.Calls(utilityapi.PathGetToken))
}

func TestLogin_Rejected(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "", "login", "-id", "unknown", "-passcode", testPasscode)
	require.EqualError(t, err, "Compte introuvable")

	_, err = f.run(t, "", "login", "-id", testLogin, "-passcode", "000000")
	require.EqualError(t, err, "Code invalide")

	out, err := f.run(t, "", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "passcode pending for "+testLogin)
}

func TestCall_AppTier(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "", "call", "-app", "-data", `{"login":"`+testLogin+`"}`, utilityapi.PathVerifyClient)
	require.NoError(t, err)
	require.Contains(t, out, "200 "+utilityapi.MessageSuccess)

	requests := f.api.Requests(utilityapi.PathVerifyClient)
	require.Len(t, requests, 1)
	require.Equal(t, "Bearer "+apifake.DefaultAPIToken, requests[0].Authorization)
	require.Equal(t, testLogin, requests[0].Body["login"])
}

func TestCall_Anonymous(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "", "call", "/bills")
	require.Error(t, err)
	require.Contains(t, out, "401")
}

func TestUsage(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "")
	require.ErrorIs(t, err, errUsage)
	_, err = f.run(t, "", "frobnicate")
	require.ErrorIs(t, err, errUsage)
	_, err = f.run(t, "", "call")
	require.ErrorIs(t, err, errUsage)
}
