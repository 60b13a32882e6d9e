// Package session keeps a browser context's access token usable: expired
// tokens are exchanged for a new pair before a request leaves, and a failed
// exchange ends the session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-utility-portal/credentials"
	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
	"github.com/jrsteele09/go-utility-portal/internal/metrics"
	"github.com/jrsteele09/go-utility-portal/token"
	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultRedirectPath is where a context is sent once its session expires.
const DefaultRedirectPath = "/"

// ExpiryHook is told when a session has been cleared and where the browser
// context should go next.
type ExpiryHook func(ctx context.Context, redirect string)

// Refresher resolves the access token of a browser context, refreshing it
// through the application tier when expired.
type Refresher struct {
	client       *utilityapi.Client
	nowTime      func() time.Time
	onExpired    ExpiryHook
	redirectPath string
	group        singleflight.Group
}

type Option func(*Refresher)

func WithNowTime(nowTime func() time.Time) Option {
	return func(r *Refresher) {
		r.nowTime = nowTime
	}
}

func WithExpiryHook(hook ExpiryHook) Option {
	return func(r *Refresher) {
		r.onExpired = hook
	}
}

func WithRedirectPath(path string) Option {
	return func(r *Refresher) {
		if path != "" {
			r.redirectPath = path
		}
	}
}

// NewRefresher creates a Refresher. client must be on the application tier
// so refresh calls never pass back through a Refresher.
func NewRefresher(client *utilityapi.Client, opts ...Option) (*Refresher, error) {
	if client == nil {
		return nil, fmt.Errorf("[NewRefresher] client is required")
	}
	r := &Refresher{
		client:       client,
		nowTime:      time.Now,
		redirectPath: DefaultRedirectPath,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// AccessToken returns the access token to send for store's context. An
// empty string means no user is logged in. A session that cannot be
// refreshed is cleared and reported as ErrSessionExpired.
func (r *Refresher) AccessToken(ctx context.Context, store credentials.SessionStore) (string, error) {
	current, err := store.Session(ctx)
	if err != nil {
		return "", fmt.Errorf("[Refresher AccessToken] %w", err)
	}
	if current.AccessToken == "" {
		return "", nil
	}
	if !token.Expired(current.AccessToken, r.nowTime()) {
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		err := r.expire(ctx, store, fmt.Errorf("%w: no refresh token", portalerrors.ErrRefreshFailed))
		r.notify(ctx)
		return "", err
	}

	key := store.ContextID() + "\x00" + current.RefreshToken
	ch := r.group.DoChan(key, func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx), store, current.RefreshToken)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("[Refresher AccessToken] %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if portalerrors.Is(res.Err, portalerrors.ErrSessionExpired) {
				r.notify(ctx)
			}
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (r *Refresher) refresh(ctx context.Context, store credentials.SessionStore, refreshToken string) (string, error) {
	// Another flight may have rotated the pair since the caller looked.
	current, err := store.Session(ctx)
	if err != nil {
		return "", fmt.Errorf("[Refresher refresh] %w", err)
	}
	if current.AccessToken == "" {
		return "", fmt.Errorf("[Refresher refresh] %w: session already cleared", portalerrors.ErrSessionExpired)
	}
	if current.RefreshToken != refreshToken {
		if !token.Expired(current.AccessToken, r.nowTime()) {
			return current.AccessToken, nil
		}
		if current.RefreshToken != "" {
			refreshToken = current.RefreshToken
		}
	}

	resp, err := r.client.Post(ctx, utilityapi.PathRefreshToken, utilityapi.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", r.expire(ctx, store, fmt.Errorf("%w: %w", portalerrors.ErrRefreshFailed, err))
	}

	var data utilityapi.RefreshData
	if resp.Message != utilityapi.MessageSuccess || !resp.HasData() || resp.Decode(&data) != nil ||
		data.Token == "" || data.RefreshToken == "" {
		return "", r.expire(ctx, store, fmt.Errorf("%w: %d %q", portalerrors.ErrRefreshFailed, resp.StatusCode, resp.Message))
	}

	if err := store.UpdateTokens(ctx, data.Token, data.RefreshToken); err != nil {
		return "", fmt.Errorf("[Refresher refresh] store tokens: %w", err)
	}
	metrics.SessionRefreshes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Debug().Str("context", store.ContextID()).Msg("Refreshed session tokens")
	return data.Token, nil
}

func (r *Refresher) expire(ctx context.Context, store credentials.SessionStore, cause error) error {
	metrics.SessionRefreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
	log.Warn().Err(cause).Str("context", store.ContextID()).Msg("Session refresh failed, clearing session")
	if err := store.ClearSession(ctx); err != nil {
		log.Err(err).Str("context", store.ContextID()).Msg("Clearing expired session")
	}
	return fmt.Errorf("[Refresher] %w: %w", portalerrors.ErrSessionExpired, cause)
}

func (r *Refresher) notify(ctx context.Context) {
	if r.onExpired != nil {
		r.onExpired(ctx, r.redirectPath)
	}
}
