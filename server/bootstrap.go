package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-utility-portal/apitoken"
	"github.com/jrsteele09/go-utility-portal/auth"
	"github.com/jrsteele09/go-utility-portal/credentials"
	"github.com/jrsteele09/go-utility-portal/internal/config"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/jrsteele09/go-utility-portal/session"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// NewBackend opens the configured credential backend. The returned close
// function releases any connection it holds.
func NewBackend(ctx context.Context, cfg config.SessionConfig) (credentials.Backend, func() error, error) {
	sealer, err := credentials.NewSealer(cfg.GetCredentialKey())
	if err != nil {
		return nil, nil, fmt.Errorf("[NewBackend] credential key: %w", err)
	}
	noop := func() error { return nil }

	switch cfg.GetCredentialBackend() {
	case config.BackendMemory, "":
		return credentials.NewMemoryBackend(), noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("[NewBackend] redis %s: %w", cfg.GetRedisAddr(), err)
		}
		backend, err := credentials.NewRedisBackend(client,
			credentials.WithTTL(cfg.GetSessionMaxAge()),
			credentials.WithRedisSealer(sealer),
		)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return backend, client.Close, nil

	case config.BackendFile:
		if err := os.MkdirAll(filepath.Dir(cfg.GetCredentialFile()), 0o700); err != nil {
			return nil, nil, fmt.Errorf("[NewBackend] credential directory: %w", err)
		}
		backend, err := credentials.NewFileBackend(cfg.GetCredentialFile(), sealer)
		if err != nil {
			return nil, nil, err
		}
		return backend, noop, nil

	default:
		return nil, nil, fmt.Errorf("[NewBackend] unknown credential backend %q", cfg.GetCredentialBackend())
	}
}

// Bootstrap builds the services behind the gateway on top of backend.
func Bootstrap(cfg config.Config, backend credentials.Backend) (Deps, error) {
	vault := credentials.NewVault(backend)
	apiURL := cfg.GetUtilityAPIURL()
	timeout := cfg.GetUtilityAPITimeout()

	provisioner, err := apitoken.New(
		utilityapi.NewClient(apiURL, &http.Client{Timeout: timeout}),
		vault.App(),
		cfg.GetUtilityAPIKey(),
		apitoken.WithLifetime(cfg.GetAPITokenLifetime()),
	)
	if err != nil {
		return Deps{}, fmt.Errorf("[Bootstrap] api token provisioner: %w", err)
	}

	appClient := apitoken.NewClient(apiURL, provisioner, timeout)
	refresher, err := session.NewRefresher(appClient, session.WithExpiryHook(func(ctx context.Context, redirect string) {
		store, _ := credentials.FromContext(ctx)
		event := log.Info().Str("redirect", redirect)
		if store != nil {
			event = event.Str("context", store.ContextID())
		}
		event.Msg("Session expired")
	}))
	if err != nil {
		return Deps{}, fmt.Errorf("[Bootstrap] session refresher: %w", err)
	}

	authenticator, err := auth.NewAuthenticator(appClient, session.NewClient(apiURL, provisioner, refresher, timeout))
	if err != nil {
		return Deps{}, fmt.Errorf("[Bootstrap] authenticator: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	return Deps{
		Vault:         vault,
		Authenticator: authenticator,
		APITokens:     provisioner,
		Refresher:     refresher,
		Social:        socialProviders(cfg),
		Registry:      registry,
	}, nil
}

// socialProviders enables each provider that has a client id configured.
func socialProviders(cfg config.Config) auth.SocialProviders {
	var providers []auth.SocialProvider
	if id := cfg.GetGoogleClientID(); id != "" {
		providers = append(providers, auth.NewGoogleProvider(oauth2.Config{
			ClientID:     id,
			ClientSecret: cfg.GetGoogleClientSecret(),
			RedirectURL:  cfg.GetBaseURL() + SocialCallbackPath(auth.ProviderGoogle),
		}, auth.GoogleIssuer))
	}
	if id := cfg.GetFacebookClientID(); id != "" {
		providers = append(providers, auth.NewFacebookProvider(oauth2.Config{
			ClientID:     id,
			ClientSecret: cfg.GetFacebookClientSecret(),
			RedirectURL:  cfg.GetBaseURL() + SocialCallbackPath(auth.ProviderFacebook),
		}))
	}
	return auth.NewSocialProviders(providers...)
}

// WarmUp provisions the API token before the first visitor arrives. A
// failure is only logged; the token is requested again on first use.
func WarmUp(ctx context.Context, tokens apitoken.Source) {
	token, err := tokens.Token(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("API token not available at startup")
		return
	}
	log.Info().Time("expiry", token.Expiry).Msg("API token ready")
}
