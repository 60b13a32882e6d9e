package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-utility-portal/apitoken"
	"github.com/jrsteele09/go-utility-portal/auth"
	"github.com/jrsteele09/go-utility-portal/credentials"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/jrsteele09/go-utility-portal/internal/utils"
	"github.com/jrsteele09/go-utility-portal/session"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/jrsteele09/go-utility-portal/utilityapi/apifake"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testLogin    = "user@x.com"
	testPasscode = "123456"
	testTimeout  = 5 * time.Second
)

type testFixture struct {
	ctx   context.Context
	api   *apifake.FakeUtilityAPI
	vault *credentials.Vault
	store *credentials.Store
	auth  *auth.Authenticator
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	api := apifake.NewFakeUtilityAPI(t)
	vault := credentials.NewVault(credentials.NewMemoryBackend())

	provisioner, err := apitoken.New(utilityapi.NewClient(api.URL(), nil), vault.App(), apifake.DefaultAPIKey)
	require.NoError(t, err)
	appClient := apitoken.NewClient(api.URL(), provisioner, testTimeout)
	refresher, err := session.NewRefresher(appClient)
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator(appClient, session.NewClient(api.URL(), provisioner, refresher, testTimeout))
	require.NoError(t, err)

	api.AddAccount(testLogin, testPasscode, utilityapi.User{
		ID:        "42",
		FirstName: utils.Ptr("Awa"),
		LastName:  utils.Ptr("Koné"),
	})

	return &testFixture{
		ctx:   context.Background(),
		api:   api,
		vault: vault,
		store: vault.Open("browser-1"),
		auth:  authenticator,
	}
}

func TestNewAuthenticator_RequiresClients(t *testing.T) {
	client := utilityapi.NewClient("http://localhost", nil)
	_, err := auth.NewAuthenticator(nil, client)
	require.Error(t, err)
	_, err = auth.NewAuthenticator(client, nil)
	require.Error(t, err)
}

func TestVerifyIdentifier_Accepted(t *testing.T) {
	f := setupTestFixture(t)

	event := f.auth.VerifyIdentifier(f.ctx, f.store, "  "+testLogin+" ")
	require.Equal(t, auth.EventIdentifierAccepted, event.Type)
	require.Equal(t, testLogin, event.Login)

	login, err := f.store.CurrentLogin(f.ctx)
	require.NoError(t, err)
	require.Equal(t, testLogin, login)

	requests := f.api.Requests(utilityapi.PathVerifyClient)
	require.Len(t, requests, 1)
	require.Equal(t, testLogin, requests[0].Body["login"])
	require.Equal(t, "Bearer "+apifake.DefaultAPIToken, requests[0].Authorization)

	state := f.auth.Resume(f.ctx, f.store)
	require.Equal(t, auth.PhasePINEntry, state.Phase)
	require.Equal(t, testLogin, state.Login)
}

func TestVerifyIdentifier_NotFound(t *testing.T) {
	f := setupTestFixture(t)

	notFound := testutil.ToFloat64(metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeNotFound))
	event := f.auth.VerifyIdentifier(f.ctx, f.store, "nobody@x.com")
	require.Equal(t, auth.EventIdentifierNotFound, event.Type)
	require.Equal(t, "Compte introuvable", event.Message)
	require.Equal(t, notFound+1, testutil.ToFloat64(metrics.IdentifierChecks.WithLabelValues(metrics.OutcomeNotFound)))

	login, err := f.store.CurrentLogin(f.ctx)
	require.NoError(t, err)
	require.Empty(t, login)
}

func TestVerifyIdentifier_Failures(t *testing.T) {
	t.Run("empty identifier", func(t *testing.T) {
		f := setupTestFixture(t)
		event := f.auth.VerifyIdentifier(f.ctx, f.store, "  ")
		require.Equal(t, auth.EventInputRejected, event.Type)
		require.Equal(t, 0, f.api.Calls(utilityapi.PathVerifyClient))
	})

	t.Run("provisioning", func(t *testing.T) {
		f := setupTestFixture(t)
		f.api.Handle(utilityapi.PathGetToken, func(w http.ResponseWriter, r *http.Request) {
			apifake.WriteEnvelope(w, http.StatusUnauthorized, "Clé API invalide", nil)
		})
		event := f.auth.VerifyIdentifier(f.ctx, f.store, testLogin)
		require.Equal(t, auth.EventProvisioningFailed, event.Type)
		require.Equal(t, auth.MsgServiceUnavailable, event.Message)
		require.Equal(t, 0, f.api.Calls(utilityapi.PathVerifyClient))
	})

	upstreamFailures := map[string]http.HandlerFunc{
		"malformed response": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("{broken"))
		},
		"bad gateway page": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
		},
		"empty internal error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"internal error envelope": func(w http.ResponseWriter, r *http.Request) {
			apifake.WriteEnvelope(w, http.StatusInternalServerError, "Erreur serveur", nil)
		},
	}
	for name, handler := range upstreamFailures {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.api.Handle(utilityapi.PathVerifyClient, handler)

			event := f.auth.VerifyIdentifier(f.ctx, f.store, testLogin)
			require.Equal(t, auth.EventRequestFailed, event.Type)
			require.Equal(t, auth.MsgRetry, event.Message)
			require.Equal(t, 1, f.api.Calls(utilityapi.PathVerifyClient))

			login, err := f.store.CurrentLogin(f.ctx)
			require.NoError(t, err)
			require.Empty(t, login)
		})
	}
}

func TestAuthenticate_Success(t *testing.T) {
	f := setupTestFixture(t)
	f.api.Handle(utilityapi.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		apifake.WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, map[string]any{
			"token":        "T1",
			"refreshToken": "R1",
			"user":         map[string]any{"id": 42, "login": testLogin, "firstname": "Awa"},
		})
	})

	event := f.auth.Authenticate(f.ctx, f.store, testLogin, testPasscode)
	require.Equal(t, auth.EventLoginSucceeded, event.Type)
	require.Equal(t, testLogin, event.Login)

	stored, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.Equal(t, "T1", stored.AccessToken)
	require.Equal(t, "R1", stored.RefreshToken)
	require.NotNil(t, stored.User)
	require.Equal(t, utilityapi.ID("42"), stored.User.ID)
	require.Equal(t, "Awa", utils.Value(stored.User.FirstName))

	requests := f.api.Requests(utilityapi.PathLogin)
	require.Equal(t, testLogin, requests[0].Body["login"])
	require.Equal(t, testPasscode, requests[0].Body["passcode"])

	state := f.auth.Resume(f.ctx, f.store)
	require.Equal(t, auth.PhaseAuthenticated, state.Phase)
}

func TestAuthenticate_RejectedLeavesStoreUntouched(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.UpdateTokens(f.ctx, "T0", "R0"))
	f.api.Handle(utilityapi.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		apifake.WriteEnvelope(w, http.StatusOK, "Code invalide", nil)
	})

	event := f.auth.Authenticate(f.ctx, f.store, testLogin, "654321")
	require.Equal(t, auth.EventLoginRejected, event.Type)
	require.Equal(t, "Code invalide", event.Message)

	stored, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.Equal(t, "T0", stored.AccessToken)
	require.Equal(t, "R0", stored.RefreshToken)
}

func TestAuthenticate_UsesRememberedIdentifier(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, auth.EventIdentifierAccepted, f.auth.VerifyIdentifier(f.ctx, f.store, testLogin).Type)

	event := f.auth.Authenticate(f.ctx, f.store, "", testPasscode)
	require.Equal(t, auth.EventLoginSucceeded, event.Type)

	stored, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.True(t, stored.Authenticated())
	require.Equal(t, "Awa Koné", stored.User.DisplayName())
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		passcode string
		handler  http.HandlerFunc
		want     auth.EventType
		message  string
		calls    int
	}{
		{
			name:     "short passcode",
			passcode: "123",
			want:     auth.EventInputRejected,
			message:  auth.MsgInvalidPasscode,
		},
		{
			name:     "wrong passcode from default fake",
			passcode: "000000",
			want:     auth.EventLoginRejected,
			message:  "Code invalide",
			calls:    1,
		},
		{
			name:     "empty message",
			passcode: testPasscode,
			handler: func(w http.ResponseWriter, r *http.Request) {
				apifake.WriteEnvelope(w, http.StatusBadRequest, "", nil)
			},
			want:    auth.EventLoginRejected,
			message: auth.MsgLoginRejected,
			calls:   1,
		},
		{
			name:     "success without refresh token",
			passcode: testPasscode,
			handler: func(w http.ResponseWriter, r *http.Request) {
				apifake.WriteEnvelope(w, http.StatusOK, utilityapi.MessageSuccess, map[string]any{
					"token": "T1",
					"user":  map[string]any{"id": 1},
				})
			},
			want:    auth.EventRequestFailed,
			message: auth.MsgRetry,
			calls:   1,
		},
		{
			name:     "server crash",
			passcode: testPasscode,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			want:    auth.EventRequestFailed,
			message: auth.MsgRetry,
			calls:   1,
		},
		{
			name:     "empty internal error",
			passcode: testPasscode,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want:    auth.EventRequestFailed,
			message: auth.MsgRetry,
			calls:   1,
		},
		{
			name:     "bad gateway page",
			passcode: testPasscode,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
			},
			want:    auth.EventRequestFailed,
			message: auth.MsgRetry,
			calls:   1,
		},
		{
			name:     "internal error envelope",
			passcode: testPasscode,
			handler: func(w http.ResponseWriter, r *http.Request) {
				apifake.WriteEnvelope(w, http.StatusServiceUnavailable, "Maintenance", nil)
			},
			want:    auth.EventRequestFailed,
			message: auth.MsgRetry,
			calls:   1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTestFixture(t)
			if tc.handler != nil {
				f.api.Handle(utilityapi.PathLogin, tc.handler)
			}

			event := f.auth.Authenticate(f.ctx, f.store, testLogin, tc.passcode)
			require.Equal(t, tc.want, event.Type)
			require.Equal(t, tc.message, event.Message)
			require.Equal(t, tc.calls, f.api.Calls(utilityapi.PathLogin))

			stored, err := f.store.Session(f.ctx)
			require.NoError(t, err)
			require.False(t, stored.Authenticated())
			require.Empty(t, stored.AccessToken)
		})
	}
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, auth.EventLoginSucceeded, f.auth.Authenticate(f.ctx, f.store, testLogin, testPasscode).Type)
	stored, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.SetCurrentLogin(f.ctx, testLogin))

	event := f.auth.Logout(f.ctx, f.store)
	require.Equal(t, auth.EventLoggedOut, event.Type)

	requests := f.api.Requests(utilityapi.PathLogout)
	require.Len(t, requests, 1)
	require.Equal(t, stored.AccessToken, requests[0].Body["token"])
	require.Equal(t, "Bearer "+stored.AccessToken, requests[0].Authorization)

	after, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.False(t, after.Authenticated())
	require.Nil(t, after.User)
	require.Equal(t, auth.PhaseIdentifierEntry, f.auth.Resume(f.ctx, f.store).Phase)
}

func TestLogout_ClearsEvenWhenAPIFails(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, auth.EventLoginSucceeded, f.auth.Authenticate(f.ctx, f.store, testLogin, testPasscode).Type)
	f.api.Handle(utilityapi.PathLogout, func(w http.ResponseWriter, r *http.Request) {
		apifake.WriteEnvelope(w, http.StatusInternalServerError, "Erreur", nil)
	})

	require.Equal(t, auth.EventLoggedOut, f.auth.Logout(f.ctx, f.store).Type)

	after, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.Empty(t, after.AccessToken)
	require.Empty(t, after.RefreshToken)
}

func TestLogout_Anonymous(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, auth.EventLoggedOut, f.auth.Logout(f.ctx, f.store).Type)
	require.Equal(t, 0, f.api.Calls(utilityapi.PathLogout))
}

func TestOTPAndRegister(t *testing.T) {
	f := setupTestFixture(t)

	message, err := f.auth.GenerateOTP(f.ctx, "0700000009")
	require.NoError(t, err)
	require.Equal(t, utilityapi.MessageSuccess, message)

	message, err = f.auth.VerifyOTP(f.ctx, "0700000009", " 4321 ")
	require.NoError(t, err)
	require.Equal(t, utilityapi.MessageSuccess, message)
	require.Equal(t, "4321", f.api.Requests(utilityapi.PathOTPVerify)[0].Body["code"])

	_, err = f.auth.Register(f.ctx, f.store, utilityapi.RegisterRequest{
		Login:     "0700000009",
		Passcode:  "135790",
		FirstName: utils.Ptr("Yao"),
	})
	require.NoError(t, err)
	body := f.api.Requests(utilityapi.PathRegister)[0].Body
	require.Equal(t, "0700000009", body["login"])
	require.Equal(t, "Yao", body["firstname"])

	login, err := f.store.CurrentLogin(f.ctx)
	require.NoError(t, err)
	require.Equal(t, "0700000009", login)
}

func TestOTP_Rejected(t *testing.T) {
	f := setupTestFixture(t)
	f.api.Handle(utilityapi.PathOTPVerify, func(w http.ResponseWriter, r *http.Request) {
		apifake.WriteEnvelope(w, http.StatusBadRequest, "Code expiré", nil)
	})

	message, err := f.auth.VerifyOTP(f.ctx, "0700000009", "0000")
	require.ErrorIs(t, err, portalerrors.ErrAuthenticationRejected)
	require.Equal(t, "Code expiré", message)
}

func TestOTP_UpstreamFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.api.Handle(utilityapi.PathOTPGenerate, func(w http.ResponseWriter, r *http.Request) {
		apifake.WriteEnvelope(w, http.StatusInternalServerError, "NullPointerException", nil)
	})

	message, err := f.auth.GenerateOTP(f.ctx, "0700000009")
	require.ErrorIs(t, err, portalerrors.ErrUnexpectedResponse)
	require.NotErrorIs(t, err, portalerrors.ErrAuthenticationRejected)
	require.Equal(t, auth.MsgRetry, message)
}

func TestRegister_ValidatesInput(t *testing.T) {
	f := setupTestFixture(t)

	message, err := f.auth.Register(f.ctx, f.store, utilityapi.RegisterRequest{Login: "0700000009", Passcode: "12"})
	require.ErrorIs(t, err, portalerrors.ErrInvalidPasscode)
	require.Equal(t, auth.MsgInvalidPasscode, message)
	require.Equal(t, 0, f.api.Calls(utilityapi.PathRegister))
}

func TestSocialLogin(t *testing.T) {
	f := setupTestFixture(t)

	event := f.auth.SocialLogin(f.ctx, f.store, auth.ProviderFacebook, "fb-token")
	require.Equal(t, auth.EventLoginSucceeded, event.Type)
	require.Equal(t, "facebook:fb-token", event.Login)

	require.Equal(t, "fb-token", f.api.Requests(utilityapi.PathSocialLogin(auth.ProviderFacebook))[0].Body["token"])
	stored, err := f.store.Session(f.ctx)
	require.NoError(t, err)
	require.True(t, stored.Authenticated())
}

func TestSocialLogin_UnknownProvider(t *testing.T) {
	f := setupTestFixture(t)

	event := f.auth.SocialLogin(f.ctx, f.store, "myspace", "tok")
	require.Equal(t, auth.EventInputRejected, event.Type)
	require.Equal(t, auth.MsgUnknownProvider, event.Message)
}
