// ABOUTME: Session store holding the current credentials, mirrored to durable storage.
// ABOUTME: Persistence is best-effort: failures are logged and reported, never returned.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/logging"
	"github.com/2389-research/backstage/internal/metrics"
	"github.com/2389-research/backstage/internal/models"
	"github.com/2389-research/backstage/internal/storage"
)

// Storage keys, shared with earlier installs of the app.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUsername     = "username"
	KeyUser         = "user"
)

// Keys lists every persisted session key.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUsername, KeyUser}

// Store is the single source of truth for who is logged in.
type Store interface {
	// SetCredentials replaces the session and persists it.
	SetCredentials(ctx context.Context, creds models.Credentials)

	// RestoreSession hydrates memory from values already read from storage.
	RestoreSession(creds models.Credentials)

	// Logout clears memory and removes every persisted key.
	Logout(ctx context.Context)

	// Session returns a snapshot of the current credentials.
	Session() models.Session

	// AccessToken returns the current access token, if any.
	AccessToken() string
}

// Manager implements Store over a storage.KeyValue.
type Manager struct {
	kv             storage.KeyValue
	logger         *slog.Logger
	onPersistError func(error)

	mu    sync.RWMutex
	creds models.Credentials
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithPersistErrorHandler registers a callback for failed writes.
func WithPersistErrorHandler(fn func(error)) Option {
	return func(m *Manager) {
		m.onPersistError = fn
	}
}

// NewManager creates an empty session backed by kv. A nil kv keeps the
// session in memory only.
func NewManager(kv storage.KeyValue, opts ...Option) *Manager {
	m := &Manager{kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a Manager and hydrates it from kv. A read failure leaves the
// session empty and is returned so the caller can report it.
func Open(ctx context.Context, kv storage.KeyValue, opts ...Option) (*Manager, error) {
	m := NewManager(kv, opts...)
	if kv == nil {
		return m, nil
	}
	creds, err := Load(ctx, kv)
	if err != nil {
		return m, err
	}
	m.RestoreSession(creds)
	return m, nil
}

// Load reads the persisted credentials once. Missing keys yield empty fields.
func Load(ctx context.Context, kv storage.KeyValue) (models.Credentials, error) {
	var creds models.Credentials
	fields := map[string]*string{
		KeyAccessToken:  &creds.AccessToken,
		KeyRefreshToken: &creds.RefreshToken,
		KeyUsername:     &creds.Username,
	}
	for key, dst := range fields {
		v, _, err := kv.Get(ctx, key)
		if err != nil {
			return models.Credentials{}, fmt.Errorf("failed to read %s: %w", key, err)
		}
		*dst = v
	}

	raw, ok, err := kv.Get(ctx, KeyUser)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to read %s: %w", KeyUser, err)
	}
	if ok && raw != "" {
		var u models.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			creds.User = &u
		}
	}
	return creds, nil
}

// SetCredentials replaces the session and persists all four keys in one batch.
func (m *Manager) SetCredentials(ctx context.Context, creds models.Credentials) {
	m.mu.Lock()
	m.creds = cloneCredentials(creds)
	m.mu.Unlock()

	batch, err := credentialsBatch(creds)
	if err != nil {
		m.persistFailed(ctx, err)
		return
	}
	m.persist(ctx, batch)
}

// RestoreSession replaces the in-memory session without touching storage.
func (m *Manager) RestoreSession(creds models.Credentials) {
	m.mu.Lock()
	m.creds = cloneCredentials(creds)
	m.mu.Unlock()
}

// Logout clears the session and removes every persisted key.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.creds = models.Credentials{}
	m.mu.Unlock()

	m.persist(ctx, storage.Batch{Delete: Keys})
}

// Session returns a snapshot of the current credentials.
func (m *Manager) Session() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.Session{Credentials: cloneCredentials(m.creds)}
}

// AccessToken returns the current access token.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.AccessToken
}

// TokenExpiry reads the exp claim when the access token is a JWT. The
// signature is not verified; the client never holds the signing key.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	return TokenExpiry(m.AccessToken())
}

// TokenExpiry reads the exp claim of an unverified JWT.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (m *Manager) persist(ctx context.Context, batch storage.Batch) {
	if m.kv == nil {
		return
	}
	err := m.kv.Apply(ctx, batch)
	metrics.IncSessionWrite(err)
	if err != nil {
		m.persistFailed(ctx, err)
	}
}

func (m *Manager) persistFailed(ctx context.Context, err error) {
	wrapped := apierr.Wrap(apierr.KindUnexpected, err, "could not persist session")
	logger := m.logger
	if l := logging.FromContext(ctx); l != slog.Default() {
		logger = l
	}
	logger.Warn("session persistence failed", slog.String("error", wrapped.Error()))
	if m.onPersistError != nil {
		m.onPersistError(wrapped)
	}
}

// credentialsBatch sets present fields and deletes absent ones in one batch.
func credentialsBatch(creds models.Credentials) (storage.Batch, error) {
	b := storage.Batch{Set: map[string]string{}}
	put := func(key, value string) {
		if value == "" {
			b.Delete = append(b.Delete, key)
			return
		}
		b.Set[key] = value
	}
	put(KeyAccessToken, creds.AccessToken)
	put(KeyRefreshToken, creds.RefreshToken)
	put(KeyUsername, creds.Username)

	if creds.User == nil {
		b.Delete = append(b.Delete, KeyUser)
		return b, nil
	}
	raw, err := json.Marshal(creds.User)
	if err != nil {
		return storage.Batch{}, fmt.Errorf("failed to encode user: %w", err)
	}
	b.Set[KeyUser] = string(raw)
	return b, nil
}

func cloneCredentials(c models.Credentials) models.Credentials {
	if c.User != nil {
		u := *c.User
		c.User = &u
	}
	return c
}
