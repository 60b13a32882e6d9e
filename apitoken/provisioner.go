// Package apitoken obtains and caches the application-level API token the
// utility API requires on every call.
package apitoken

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-utility-portal/credentials"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultLifetime is assumed for issued tokens; the issuance endpoint does
// not report an expiry.
const DefaultLifetime = 24 * time.Hour

const flightKey = "api_token"

// Source yields a valid API token.
type Source interface {
	Token(ctx context.Context) (credentials.APIToken, error)
}

// Provisioner implements Source over the credential store, issuing a new
// token only when the cached one has expired.
type Provisioner struct {
	client   *utilityapi.Client
	store    credentials.SessionStore
	apiKey   string
	lifetime time.Duration
	nowTime  func() time.Time
	group    singleflight.Group
}

var _ Source = (*Provisioner)(nil)

type Option func(*Provisioner)

func WithNowTime(nowTime func() time.Time) Option {
	return func(p *Provisioner) {
		p.nowTime = nowTime
	}
}

func WithLifetime(lifetime time.Duration) Option {
	return func(p *Provisioner) {
		if lifetime > 0 {
			p.lifetime = lifetime
		}
	}
}

// New creates a Provisioner. client must not add authorization itself; store
// is normally the vault's application context.
func New(client *utilityapi.Client, store credentials.SessionStore, apiKey string, opts ...Option) (*Provisioner, error) {
	if client == nil {
		return nil, fmt.Errorf("[apitoken New] client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("[apitoken New] store is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("[apitoken New] api key is required")
	}
	p := &Provisioner{
		client:   client,
		store:    store,
		apiKey:   apiKey,
		lifetime: DefaultLifetime,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Token returns the cached token while it is valid, otherwise issues a new
// one. Concurrent callers share a single issuance call. Every failure wraps
// ErrAPITokenUnavailable.
func (p *Provisioner) Token(ctx context.Context) (credentials.APIToken, error) {
	if cached, ok := p.cached(ctx); ok {
		return cached, nil
	}

	ch := p.group.DoChan(flightKey, func() (any, error) {
		return p.issue(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return credentials.APIToken{}, fmt.Errorf("[apitoken Token] %w: %w", portalerrors.ErrAPITokenUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return credentials.APIToken{}, res.Err
		}
		return res.Val.(credentials.APIToken), nil
	}
}

// TokenSource adapts the provisioner to oauth2.TokenSource for ctx.
func (p *Provisioner) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provisioner: p}
}

func (p *Provisioner) cached(ctx context.Context) (credentials.APIToken, bool) {
	token, err := p.store.APIToken(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Reading cached api token")
		return credentials.APIToken{}, false
	}
	return token, token.ValidAt(p.nowTime())
}

func (p *Provisioner) issue(ctx context.Context) (credentials.APIToken, error) {
	// A flight that started after another finished finds the fresh token here.
	if cached, ok := p.cached(ctx); ok {
		return cached, nil
	}

	resp, err := p.client.Post(ctx, utilityapi.PathGetToken, utilityapi.TokenRequest{APIKey: p.apiKey})
	if err != nil {
		metrics.APITokenIssued.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.Err(err).Msg("Requesting api token")
		return credentials.APIToken{}, fmt.Errorf("[apitoken issue] %w: %w", portalerrors.ErrAPITokenUnavailable, err)
	}

	var value string
	if resp.Message != utilityapi.MessageTokenIssued || !resp.HasData() || json.Unmarshal(resp.Data, &value) != nil || value == "" {
		metrics.APITokenIssued.WithLabelValues(metrics.OutcomeRejected).Inc()
		log.Warn().Int("status", resp.StatusCode).Str("message", resp.Message).Msg("Api token issuance rejected")
		return credentials.APIToken{}, fmt.Errorf("[apitoken issue] %w: %q", portalerrors.ErrAPITokenUnavailable, resp.Message)
	}

	token := credentials.APIToken{Token: value, Expiry: p.nowTime().Add(p.lifetime)}
	if err := p.store.SaveAPIToken(ctx, token); err != nil {
		log.Err(err).Msg("Caching api token")
	}
	metrics.APITokenIssued.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Debug().Time("expiry", token.Expiry).Msg("Issued api token")
	return token, nil
}

type tokenSource struct {
	ctx         context.Context
	provisioner *Provisioner
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.provisioner.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return token.OAuth2(), nil
}
