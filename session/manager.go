package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stokaro/trustboard/core/clock"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "community.sid"
	// DefaultTTL is the lifetime of a new session.
	DefaultTTL = 7 * 24 * time.Hour
)

// Manager issues, loads and destroys sessions.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecureCookie marks the cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithClock sets the clock used for expiry.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// NewManager creates a manager storing sessions in store and signing cookies
// with secret.
func NewManager(store Store, secret string, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		secret: []byte(secret),
		ttl:    DefaultTTL,
		clock:  clock.Real(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithLogger sets the logger for the manager
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// Load returns the session user of the request, if any. Invalid signatures
// and unknown ids are treated as anonymous.
func (m *Manager) Load(r *http.Request) (User, bool, error) {
	id, ok := m.sessionID(r)
	if !ok {
		return User{}, false, nil
	}
	return m.store.Get(r.Context(), id)
}

// Start creates a new session for u and sets the cookie. A session the
// request already carried is destroyed first.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, u User) error {
	if old, ok := m.sessionID(r); ok {
		if err := m.store.Destroy(r.Context(), old); err != nil {
			return err
		}
	}

	id := uuid.NewString()
	expires := m.clock.Now().Add(m.ttl)
	if err := m.store.Set(r.Context(), id, u, expires); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.sign(id),
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy deletes the session of the request and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	if id, ok := m.sessionID(r); ok {
		if err := m.store.Destroy(r.Context(), id); err != nil {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Middleware loads the session user into the request context. Store
// failures are logged and the request continues anonymously.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok, err := m.Load(r)
		if err != nil {
			m.logger.Error("Failed to load session", "path", r.URL.Path, "error", err)
		}
		if ok {
			r = r.WithContext(NewContext(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

// RunCleanup purges expired sessions every interval until ctx is done. The
// extra functions run on the same schedule.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration, extra ...func(context.Context, time.Time) (int64, error)) {
	purger, ok := m.store.(Purger)
	if ok {
		extra = append([]func(context.Context, time.Time) (int64, error){purger.PurgeExpired}, extra...)
	}
	if len(extra) == 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.clock.Now()
			for _, purge := range extra {
				n, err := purge(ctx, now)
				if err != nil {
					m.logger.Error("Cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					m.logger.Debug("Purged expired records", "count", n)
				}
			}
		}
	}
}

func (m *Manager) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return m.verify(cookie.Value)
}

func (m *Manager) sign(id string) string {
	return id + "." + m.mac(id)
}

func (m *Manager) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.mac(id))) {
		return "", false
	}
	return id, true
}

func (m *Manager) mac(id string) string {
	h := hmac.New(sha256.New, m.secret)
	_, _ = fmt.Fprint(h, id)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
