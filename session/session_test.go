package session_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/dbschema"
	"github.com/stokaro/trustboard/migration/migrations"
	"github.com/stokaro/trustboard/migration/migrator"
	"github.com/stokaro/trustboard/session"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

var alice = session.User{ID: 7, Username: "alice", Email: "alice@x.com"}

func sessionCookie(c *qt.C, rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName {
			return cookie
		}
	}
	c.Fatalf("no %s cookie set", session.CookieName)
	return nil
}

func TestManager_StartLoadDestroy(t *testing.T) {
	c := qt.New(t)
	clk := clock.Fake(epoch)
	m := session.NewManager(session.NewMemoryStore(clk), "secret", session.WithClock(clk), session.WithTTL(time.Hour))

	rec := httptest.NewRecorder()
	c.Assert(m.Start(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), alice), qt.IsNil)

	cookie := sessionCookie(c, rec)
	c.Assert(cookie.HttpOnly, qt.IsTrue)
	c.Assert(cookie.SameSite, qt.Equals, http.SameSiteLaxMode)
	c.Assert(cookie.MaxAge, qt.Equals, 3600)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	u, ok, err := m.Load(req)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(u, qt.DeepEquals, alice)

	rec = httptest.NewRecorder()
	c.Assert(m.Destroy(rec, req), qt.IsNil)
	c.Assert(sessionCookie(c, rec).MaxAge, qt.Equals, -1)

	_, ok, err = m.Load(req)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestManager_Expiry(t *testing.T) {
	c := qt.New(t)
	clk := clock.Fake(epoch)
	m := session.NewManager(session.NewMemoryStore(clk), "secret", session.WithClock(clk), session.WithTTL(time.Hour))

	rec := httptest.NewRecorder()
	c.Assert(m.Start(rec, httptest.NewRequest(http.MethodPost, "/", nil), alice), qt.IsNil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(c, rec))

	clk.Advance(59 * time.Minute)
	_, ok, _ := m.Load(req)
	c.Assert(ok, qt.IsTrue)

	clk.Advance(time.Minute)
	_, ok, _ = m.Load(req)
	c.Assert(ok, qt.IsFalse)
}

func TestManager_RejectsTamperedCookie(t *testing.T) {
	c := qt.New(t)
	m := session.NewManager(session.NewMemoryStore(nil), "secret")

	rec := httptest.NewRecorder()
	c.Assert(m.Start(rec, httptest.NewRequest(http.MethodPost, "/", nil), alice), qt.IsNil)
	cookie := sessionCookie(c, rec)

	id, _, _ := strings.Cut(cookie.Value, ".")
	tests := []struct {
		name  string
		value string
	}{
		{"unsigned id", id},
		{"wrong signature", id + ".AAAA"},
		{"empty id", "." + strings.SplitN(cookie.Value, ".", 2)[1]},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: tt.value})
			_, ok, err := m.Load(req)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsFalse)
		})
	}

	other := session.NewManager(session.NewMemoryStore(nil), "another-secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	_, ok, _ := other.Load(req)
	c.Assert(ok, qt.IsFalse)
}

func TestManager_StartRotatesID(t *testing.T) {
	c := qt.New(t)
	store := session.NewMemoryStore(nil)
	m := session.NewManager(store, "secret")

	rec := httptest.NewRecorder()
	c.Assert(m.Start(rec, httptest.NewRequest(http.MethodPost, "/", nil), alice), qt.IsNil)
	first := sessionCookie(c, rec)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(first)
	rec = httptest.NewRecorder()
	c.Assert(m.Start(rec, req, session.User{ID: 8, Username: "bob"}), qt.IsNil)
	second := sessionCookie(c, rec)
	c.Assert(second.Value, qt.Not(qt.Equals), first.Value)

	_, ok, _ := m.Load(req)
	c.Assert(ok, qt.IsFalse)
}

func TestManager_Middleware(t *testing.T) {
	c := qt.New(t)
	m := session.NewManager(session.NewMemoryStore(nil), "secret")

	var seen []string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := session.FromContext(r.Context())
		if ok {
			seen = append(seen, u.Username)
		} else {
			seen = append(seen, "")
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	c.Assert(m.Start(rec, httptest.NewRequest(http.MethodPost, "/", nil), alice), qt.IsNil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(c, rec))
	h.ServeHTTP(httptest.NewRecorder(), req)

	c.Assert(seen, qt.DeepEquals, []string{"", "alice"})
}

func TestManager_RunCleanup(t *testing.T) {
	c := qt.New(t)
	clk := clock.Fake(epoch)
	store := session.NewMemoryStore(clk)
	m := session.NewManager(store, "secret", session.WithClock(clk), session.WithTTL(time.Minute)).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	c.Assert(store.Set(context.Background(), "old", alice, epoch.Add(-time.Minute)), qt.IsNil)

	purged := make(chan time.Time, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.RunCleanup(ctx, 5*time.Millisecond, func(_ context.Context, now time.Time) (int64, error) {
			select {
			case purged <- now:
			default:
			}
			return 0, nil
		})
	}()

	select {
	case now := <-purged:
		c.Assert(now, qt.Equals, epoch)
	case <-time.After(5 * time.Second):
		c.Fatal("cleanup did not run")
	}
	cancel()
	<-done

	n, err := store.PurgeExpired(context.Background(), epoch)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(0))
}

func TestSQLStore(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	conn, err := dbschema.ConnectToDatabase(filepath.Join(c.TempDir(), "sessions.db"))
	c.Assert(err, qt.IsNil)
	defer conn.Close()
	provider, err := migrations.Provider(conn.Dialect())
	c.Assert(err, qt.IsNil)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	c.Assert(migrator.NewMigrator(conn, provider).WithLogger(quiet).MigrateUp(ctx), qt.IsNil)

	clk := clock.Fake(epoch)
	s := session.NewSQLStore(conn, clk)

	c.Assert(s.Set(ctx, "sid", alice, epoch.Add(time.Hour)), qt.IsNil)
	// overwriting keeps one row
	admin := alice
	admin.IsAdmin = true
	c.Assert(s.Set(ctx, "sid", admin, epoch.Add(time.Hour)), qt.IsNil)

	u, ok, err := s.Get(ctx, "sid")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(u, qt.DeepEquals, admin)

	n, err := dbschema.Count(ctx, conn, "SELECT COUNT(*) FROM sessions WHERE user_id = ?", alice.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(1))

	clk.Advance(time.Hour)
	_, ok, err = s.Get(ctx, "sid")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	purged, err := s.PurgeExpired(ctx, clk.Now())
	c.Assert(err, qt.IsNil)
	c.Assert(purged, qt.Equals, int64(1))

	c.Assert(s.Set(ctx, "sid2", alice, clk.Now().Add(time.Hour)), qt.IsNil)
	c.Assert(s.Destroy(ctx, "sid2"), qt.IsNil)
	_, ok, err = s.Get(ctx, "sid2")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}
