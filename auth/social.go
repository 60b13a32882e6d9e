package auth

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

// Social providers accepted by the utility API.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

const GoogleIssuer = "https://accounts.google.com"

func IsSocialProvider(name string) bool {
	return name == ProviderGoogle || name == ProviderFacebook
}

// SocialProvider runs the browser side of a provider's OAuth2 flow and
// yields the token the utility API expects for that provider.
type SocialProvider interface {
	Name() string
	AuthCodeURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) (string, error)
}

// GoogleProvider signs in with Google over OpenID Connect. The utility API
// receives the verified ID token.
type GoogleProvider struct {
	issuer string
	config oauth2.Config

	mu       sync.RWMutex
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewGoogleProvider builds a provider from cfg (client id, secret, redirect
// URL). issuer defaults to GoogleIssuer. Discovery happens on first use.
func NewGoogleProvider(cfg oauth2.Config, issuer string) *GoogleProvider {
	if issuer == "" {
		issuer = GoogleIssuer
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &GoogleProvider{issuer: issuer, config: cfg}
}

func (g *GoogleProvider) Name() string {
	return ProviderGoogle
}

func (g *GoogleProvider) discover(ctx context.Context) (oauth2.Config, *oidc.IDTokenVerifier, error) {
	g.mu.RLock()
	provider, verifier := g.provider, g.verifier
	g.mu.RUnlock()
	if provider == nil {
		var err error
		provider, err = oidc.NewProvider(ctx, g.issuer)
		if err != nil {
			return oauth2.Config{}, nil, fmt.Errorf("[GoogleProvider] failed to create OIDC provider: %w", err)
		}
		verifier = provider.Verifier(&oidc.Config{ClientID: g.config.ClientID})

		g.mu.Lock()
		g.provider, g.verifier = provider, verifier
		g.mu.Unlock()
	}

	cfg := g.config
	cfg.Endpoint = provider.Endpoint()
	return cfg, verifier, nil
}

func (g *GoogleProvider) AuthCodeURL(ctx context.Context, state string) (string, error) {
	cfg, _, err := g.discover(ctx)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (string, error) {
	cfg, verifier, err := g.discover(ctx)
	if err != nil {
		return "", err
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("[GoogleProvider Exchange] %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("[GoogleProvider Exchange] %w: no id_token", portalerrors.ErrUnexpectedResponse)
	}
	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		return "", fmt.Errorf("[GoogleProvider Exchange] verify id token: %w", err)
	}
	return rawIDToken, nil
}

// FacebookProvider signs in with Facebook Login. The utility API receives
// the user access token.
type FacebookProvider struct {
	config oauth2.Config
}

// NewFacebookProvider builds a provider from cfg; an empty endpoint means
// Facebook's own.
func NewFacebookProvider(cfg oauth2.Config) *FacebookProvider {
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = facebook.Endpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"email", "public_profile"}
	}
	return &FacebookProvider{config: cfg}
}

func (f *FacebookProvider) Name() string {
	return ProviderFacebook
}

func (f *FacebookProvider) AuthCodeURL(_ context.Context, state string) (string, error) {
	return f.config.AuthCodeURL(state), nil
}

func (f *FacebookProvider) Exchange(ctx context.Context, code string) (string, error) {
	token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("[FacebookProvider Exchange] %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("[FacebookProvider Exchange] %w: no access token", portalerrors.ErrUnexpectedResponse)
	}
	return token.AccessToken, nil
}

// SocialProviders indexes the configured providers by name.
type SocialProviders map[string]SocialProvider

func NewSocialProviders(providers ...SocialProvider) SocialProviders {
	out := make(SocialProviders, len(providers))
	for _, p := range providers {
		out[p.Name()] = p
	}
	return out
}

func (s SocialProviders) Get(name string) (SocialProvider, error) {
	p, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", portalerrors.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the configured providers in sorted order.
func (s SocialProviders) Names() []string {
	return slices.Sorted(maps.Keys(s))
}
