package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/jrsteele09/go-utility-portal/utilityapi"
	"github.com/rs/zerolog/log"
)

// Backend persists the values of each browser context.
type Backend interface {
	// Load returns the values of contextID; an unknown context yields an empty map.
	Load(ctx context.Context, contextID string) (map[Key]string, error)
	// Save replaces the values of contextID.
	Save(ctx context.Context, contextID string, values map[Key]string) error
	// Delete removes contextID entirely.
	Delete(ctx context.Context, contextID string) error
}

// AtomicBackend is implemented by backends shared between processes. Its
// Update runs the whole read-modify-write as one atomic step, which the
// in-process stripe lock cannot guarantee across replicas.
type AtomicBackend interface {
	Backend
	Update(ctx context.Context, contextID string, mutate func(values map[Key]string) error) error
}

// SessionStore is the single access point to one browser context's
// credentials.
type SessionStore interface {
	ContextID() string

	Session(ctx context.Context) (Session, error)
	SaveSession(ctx context.Context, session Session) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken string) error
	ClearSession(ctx context.Context) error

	CurrentLogin(ctx context.Context) (string, error)
	SetCurrentLogin(ctx context.Context, login string) error
	ClearCurrentLogin(ctx context.Context) error

	APIToken(ctx context.Context) (APIToken, error)
	SaveAPIToken(ctx context.Context, token APIToken) error

	Value(ctx context.Context, key Key) (string, error)
	SetValue(ctx context.Context, key Key, value string) error
	DeleteValue(ctx context.Context, key Key) error
}

var _ SessionStore = (*Store)(nil)

const lockStripes = 64

// Vault hands out stores over a shared backend. Writes for the same context
// are serialized through a striped lock table.
type Vault struct {
	backend Backend
	locks   [lockStripes]sync.Mutex
}

func NewVault(backend Backend) *Vault {
	return &Vault{backend: backend}
}

// Open returns the store of contextID.
func (v *Vault) Open(contextID string) *Store {
	h := fnv.New32a()
	_, _ = h.Write([]byte(contextID))
	return &Store{
		id:      contextID,
		backend: v.backend,
		mu:      &v.locks[h.Sum32()%lockStripes],
	}
}

// App returns the store of the application context.
func (v *Vault) App() *Store {
	return v.Open(AppContextID)
}

// Forget deletes every value of contextID.
func (v *Vault) Forget(ctx context.Context, contextID string) error {
	s := v.Open(contextID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return v.backend.Delete(ctx, contextID)
}

// Store implements SessionStore for one context.
type Store struct {
	id      string
	backend Backend
	mu      *sync.Mutex
}

func (s *Store) ContextID() string {
	return s.id
}

func (s *Store) read(ctx context.Context) (map[Key]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.backend.Load(ctx, s.id)
	if err != nil {
		return nil, fmt.Errorf("[credentials %s] load: %w", s.id, err)
	}
	return values, nil
}

func (s *Store) update(ctx context.Context, mutate func(values map[Key]string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic, ok := s.backend.(AtomicBackend); ok {
		return atomic.Update(ctx, s.id, mutate)
	}
	values, err := s.backend.Load(ctx, s.id)
	if err != nil {
		return fmt.Errorf("[credentials %s] load: %w", s.id, err)
	}
	if values == nil {
		values = make(map[Key]string)
	}
	if err := mutate(values); err != nil {
		return err
	}
	if len(values) == 0 {
		if err := s.backend.Delete(ctx, s.id); err != nil {
			return fmt.Errorf("[credentials %s] delete: %w", s.id, err)
		}
		return nil
	}
	if err := s.backend.Save(ctx, s.id, values); err != nil {
		return fmt.Errorf("[credentials %s] save: %w", s.id, err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context) (Session, error) {
	values, err := s.read(ctx)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		AccessToken:  values[KeyToken],
		RefreshToken: values[KeyRefreshToken],
	}
	if raw := values[KeyUser]; raw != "" {
		var user utilityapi.User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			log.Warn().Err(err).Str("context", s.id).Msg("Discarding unreadable stored user")
		} else {
			session.User = &user
		}
	}
	return session, nil
}

func (s *Store) SaveSession(ctx context.Context, session Session) error {
	var userJSON []byte
	if session.User != nil {
		var err error
		if userJSON, err = json.Marshal(session.User); err != nil {
			return fmt.Errorf("[credentials %s] marshal user: %w", s.id, err)
		}
	}
	return s.update(ctx, func(values map[Key]string) error {
		setOrDelete(values, KeyToken, session.AccessToken)
		setOrDelete(values, KeyRefreshToken, session.RefreshToken)
		setOrDelete(values, KeyUser, string(userJSON))
		return nil
	})
}

func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	return s.update(ctx, func(values map[Key]string) error {
		setOrDelete(values, KeyToken, accessToken)
		setOrDelete(values, KeyRefreshToken, refreshToken)
		return nil
	})
}

func (s *Store) ClearSession(ctx context.Context) error {
	return s.update(ctx, func(values map[Key]string) error {
		delete(values, KeyToken)
		delete(values, KeyRefreshToken)
		delete(values, KeyUser)
		return nil
	})
}

func (s *Store) CurrentLogin(ctx context.Context) (string, error) {
	return s.Value(ctx, KeyCurrentLogin)
}

func (s *Store) SetCurrentLogin(ctx context.Context, login string) error {
	return s.SetValue(ctx, KeyCurrentLogin, login)
}

func (s *Store) ClearCurrentLogin(ctx context.Context) error {
	return s.DeleteValue(ctx, KeyCurrentLogin)
}

func (s *Store) APIToken(ctx context.Context) (APIToken, error) {
	values, err := s.read(ctx)
	if err != nil {
		return APIToken{}, err
	}
	token := APIToken{Token: values[KeyAPIToken]}
	if raw := values[KeyAPITokenExpiry]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warn().Err(err).Str("context", s.id).Msg("Ignoring unreadable api token expiry")
		} else {
			token.Expiry = time.UnixMilli(ms)
		}
	}
	return token, nil
}

func (s *Store) SaveAPIToken(ctx context.Context, token APIToken) error {
	return s.update(ctx, func(values map[Key]string) error {
		values[KeyAPIToken] = token.Token
		values[KeyAPITokenExpiry] = strconv.FormatInt(token.Expiry.UnixMilli(), 10)
		return nil
	})
}

func (s *Store) Value(ctx context.Context, key Key) (string, error) {
	values, err := s.read(ctx)
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *Store) SetValue(ctx context.Context, key Key, value string) error {
	return s.update(ctx, func(values map[Key]string) error {
		setOrDelete(values, key, value)
		return nil
	})
}

func (s *Store) DeleteValue(ctx context.Context, key Key) error {
	return s.update(ctx, func(values map[Key]string) error {
		delete(values, key)
		return nil
	})
}

func setOrDelete(values map[Key]string, key Key, value string) {
	if value == "" {
		delete(values, key)
		return
	}
	values[key] = value
}

type storeContextKey struct{}

// WithStore attaches the browser context's store to ctx.
func WithStore(ctx context.Context, store SessionStore) context.Context {
	return context.WithValue(ctx, storeContextKey{}, store)
}

// FromContext returns the store attached by WithStore.
func FromContext(ctx context.Context) (SessionStore, bool) {
	store, ok := ctx.Value(storeContextKey{}).(SessionStore)
	return store, ok && store != nil
}
