package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"golang.org/x/crypto/bcrypt"

	"github.com/stokaro/trustboard/admin"
	"github.com/stokaro/trustboard/auth"
	"github.com/stokaro/trustboard/cache"
	"github.com/stokaro/trustboard/core/clock"
	"github.com/stokaro/trustboard/dbschema"
	"github.com/stokaro/trustboard/directory"
	"github.com/stokaro/trustboard/forum"
	"github.com/stokaro/trustboard/mailer"
	"github.com/stokaro/trustboard/migration/migrations"
	"github.com/stokaro/trustboard/migration/migrator"
	"github.com/stokaro/trustboard/seo"
	"github.com/stokaro/trustboard/server"
	"github.com/stokaro/trustboard/session"
	"github.com/stokaro/trustboard/store"
	"github.com/stokaro/trustboard/uploads"
)

const baseURL = "https://community.example"

type fixture struct {
	srv  *httptest.Server
	auth *auth.Service
}

func newFixture(c *qt.C) *fixture {
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Real()

	conn, err := dbschema.ConnectToDatabase(filepath.Join(c.TempDir(), "server.db"))
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = conn.Close() })

	provider, err := migrations.Provider(conn.Dialect())
	c.Assert(err, qt.IsNil)
	c.Assert(migrator.NewMigrator(conn, provider).WithLogger(quiet).MigrateUp(ctx), qt.IsNil)

	st := store.New(conn, clk)
	files, err := uploads.New(uploads.Options{Dir: filepath.Join(c.TempDir(), "uploads")})
	c.Assert(err, qt.IsNil)
	files = files.WithLogger(quiet)

	pages, err := seo.NewRenderer(baseURL)
	c.Assert(err, qt.IsNil)

	authSvc := auth.NewService(st, mailer.NewLogMailer(quiet), clk, auth.Options{BcryptCost: bcrypt.MinCost}).WithLogger(quiet)
	_, err = authSvc.SeedAdmin(ctx, "admin", "admin@community.example", "admin-pass")
	c.Assert(err, qt.IsNil)

	s := server.New(server.Deps{
		Sessions:  session.NewManager(session.NewMemoryStore(clk), "test-secret").WithLogger(quiet),
		Auth:      authSvc,
		Forum:     forum.NewService(st, files).WithLogger(quiet),
		Directory: directory.NewService(st, clk).WithLogger(quiet),
		Admin:     admin.NewService(st, files).WithLogger(quiet),
		Latest:    cache.NewLatest(st, cache.DefaultTTL, clk),
		Uploads:   files,
		Pages:     pages,
		Sitemap:   st,
		Ping:      conn.PingContext,
		BaseURL:   baseURL,
		Clock:     clk,
	}).WithLogger(quiet)

	srv := httptest.NewServer(s.Handler())
	c.Cleanup(srv.Close)
	return &fixture{srv: srv, auth: authSvc}
}

// client is one browser with its own cookie jar.
type client struct {
	c    *qt.C
	base string
	http *http.Client
}

func (f *fixture) client(c *qt.C) *client {
	jar, err := cookiejar.New(nil)
	c.Assert(err, qt.IsNil)
	return &client{c: c, base: f.srv.URL, http: &http.Client{Jar: jar}}
}

func (cl *client) send(req *http.Request) (int, map[string]any) {
	resp, err := cl.http.Do(req)
	cl.c.Assert(err, qt.IsNil)
	defer resp.Body.Close()

	var body map[string]any
	cl.c.Assert(json.NewDecoder(resp.Body).Decode(&body), qt.IsNil, qt.Commentf("%s %s", req.Method, req.URL))
	return resp.StatusCode, body
}

func (cl *client) do(method, path string, payload any) (int, map[string]any) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		cl.c.Assert(err, qt.IsNil)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, cl.base+path, body)
	cl.c.Assert(err, qt.IsNil)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return cl.send(req)
}

func (cl *client) get(path string) (int, *http.Response, string) {
	resp, err := cl.http.Get(cl.base + path)
	cl.c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	cl.c.Assert(err, qt.IsNil)
	return resp.StatusCode, resp, string(b)
}

func (cl *client) login(username, password string) {
	status, body := cl.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password})
	cl.c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%v", body))
}

func (cl *client) register(username string) {
	status, body := cl.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password1",
	})
	cl.c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%v", body))
}

func (cl *client) createPost(title string) int64 {
	status, body := cl.do(http.MethodPost, "/api/posts", map[string]string{"title": title, "content": title + " 본문"})
	cl.c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%v", body))
	return int64(body["id"].(float64))
}

func postIDs(body map[string]any) []int64 {
	var ids []int64
	for _, p := range body["posts"].([]any) {
		ids = append(ids, int64(p.(map[string]any)["id"].(float64)))
	}
	return ids
}

func TestScenario(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	alice := f.client(c)
	anon := f.client(c)

	status, body := alice.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password1",
	})
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["success"], qt.Equals, true)
	c.Assert(body["user"].(map[string]any)["username"], qt.Equals, "alice")

	status, body = alice.do(http.MethodGet, "/api/auth/me", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["user"].(map[string]any)["username"], qt.Equals, "alice")
	c.Assert(body["user"].(map[string]any)["is_admin"], qt.Equals, false)

	status, body = anon.do(http.MethodPost, "/api/posts", map[string]string{"title": "t", "content": "c"})
	c.Assert(status, qt.Equals, http.StatusUnauthorized)
	c.Assert(body["success"], qt.Equals, false)
	c.Assert(body["error"], qt.Equals, auth.MsgLoginRequired)

	status, body = anon.do(http.MethodGet, "/api/auth/me", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["user"], qt.IsNil)

	// a fresh login on another client
	other := f.client(c)
	other.login("alice", "password1")
	id := other.createPost("첫 글")

	status, body = anon.do(http.MethodGet, "/api/posts", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	posts := body["posts"].([]any)
	c.Assert(posts, qt.HasLen, 1)
	post := posts[0].(map[string]any)
	c.Assert(post["id"], qt.Equals, float64(id))
	c.Assert(post["writer"], qt.Equals, "alice")
	c.Assert(post["comment_count"], qt.Equals, float64(0))

	status, body = alice.do(http.MethodPost, fmt.Sprintf("/api/posts/%d/comments", id), map[string]string{"content": "  좋은 글  "})
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["comment"].(map[string]any)["content"], qt.Equals, "좋은 글")
	c.Assert(body["comments"], qt.HasLen, 1)

	status, body = anon.do(http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["post"].(map[string]any)["comment_count"], qt.Equals, float64(1))
	c.Assert(body["comments"], qt.HasLen, 1)

	status, body = alice.do(http.MethodGet, "/api/mypage/comments", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["comments"].([]any)[0].(map[string]any)["post_title"], qt.Equals, "첫 글")

	status, _ = alice.do(http.MethodPost, "/api/auth/logout", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	_, body = alice.do(http.MethodGet, "/api/auth/me", nil)
	c.Assert(body["user"], qt.IsNil)
}

func TestAuthErrors(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	cl := f.client(c)
	cl.register("alice")

	tests := []struct {
		name    string
		path    string
		payload any
		status  int
		message string
	}{
		{"duplicate username", "/api/auth/register", map[string]string{"username": "alice", "email": "x@example.com", "password": "password1"}, http.StatusConflict, auth.MsgUsernameTaken},
		{"short password", "/api/auth/register", map[string]string{"username": "bob", "email": "bob@example.com", "password": "123"}, http.StatusBadRequest, auth.MsgBadPassword},
		{"wrong password", "/api/auth/login", map[string]string{"username": "alice", "password": "nope-nope"}, http.StatusUnauthorized, auth.MsgLoginFailed},
		{"unknown user", "/api/auth/login", map[string]string{"username": "nobody", "password": "password1"}, http.StatusUnauthorized, auth.MsgLoginFailed},
		{"bad token", "/api/auth/reset-password", map[string]string{"token": "deadbeef", "password": "password2"}, http.StatusBadRequest, auth.MsgTokenInvalid},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			status, body := f.client(c).do(http.MethodPost, tt.path, tt.payload)
			c.Assert(status, qt.Equals, tt.status)
			c.Assert(body["error"], qt.Equals, tt.message)
		})
	}

	c.Run("malformed body", func(c *qt.C) {
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/auth/login", strings.NewReader("{"))
		c.Assert(err, qt.IsNil)
		status, body := f.client(c).send(req)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(body["success"], qt.Equals, false)
	})
}

func TestPasswordReset(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	cl := f.client(c)
	cl.register("alice")

	status, body := cl.do(http.MethodPost, "/api/auth/request-reset", map[string]string{"email": "nobody@example.com"})
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["message"], qt.Equals, auth.MsgResetRequested)
	c.Assert(body["token"], qt.IsNil)

	_, body = cl.do(http.MethodPost, "/api/auth/request-reset", map[string]string{"email": "ALICE@example.com"})
	c.Assert(body["message"], qt.Equals, auth.MsgResetRequested)
	token := body["token"].(string)
	c.Assert(body["resetUrl"], qt.Matches, `.*/reset-password\?token=`+token)

	status, body = cl.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "password": "new-password"})
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["message"], qt.Equals, auth.MsgPasswordReset)

	status, _ = cl.do(http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "password": "other-password"})
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	fresh := f.client(c)
	fresh.login("alice", "new-password")
	status, body = fresh.do(http.MethodPost, "/api/auth/change-password", map[string]string{"currentPassword": "new-password", "newPassword": "third-password"})
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["message"], qt.Equals, auth.MsgPasswordChanged)
	f.client(c).login("alice", "third-password")
}

func TestAdminModeration(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	alice := f.client(c)
	alice.register("alice")
	hidden := alice.createPost("숨길 글")
	kept := alice.createPost("남길 글")

	status, body := alice.do(http.MethodGet, "/api/admin/posts", nil)
	c.Assert(status, qt.Equals, http.StatusForbidden)
	c.Assert(body["error"], qt.Equals, auth.MsgAdminRequired)

	adm := f.client(c)
	adm.login("admin", "admin-pass")

	status, _ = adm.do(http.MethodPost, fmt.Sprintf("/api/admin/posts/%d/hide", hidden), nil)
	c.Assert(status, qt.Equals, http.StatusOK)

	anon := f.client(c)
	_, body = anon.do(http.MethodGet, "/api/posts", nil)
	c.Assert(postIDs(body), qt.DeepEquals, []int64{kept})

	status, body = anon.do(http.MethodGet, fmt.Sprintf("/api/posts/%d", hidden), nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(body["error"], qt.Equals, forum.MsgPostNotFound)

	_, _, sitemap := anon.get("/sitemap.xml")
	c.Assert(sitemap, qt.Contains, fmt.Sprintf("%s/posts/%d<", baseURL, kept))
	c.Assert(strings.Contains(sitemap, fmt.Sprintf("%s/posts/%d<", baseURL, hidden)), qt.IsFalse)

	status, _, _ = anon.get(fmt.Sprintf("/posts/%d", hidden))
	c.Assert(status, qt.Equals, http.StatusNotFound)

	_, body = adm.do(http.MethodGet, "/api/admin/posts", nil)
	var sawHidden bool
	for _, p := range body["posts"].([]any) {
		post := p.(map[string]any)
		if int64(post["id"].(float64)) == hidden {
			sawHidden = post["is_hidden"].(bool)
		}
	}
	c.Assert(sawHidden, qt.IsTrue)

	status, body = adm.do(http.MethodPost, "/api/admin/moderation", map[string]any{"posts": []any{hidden, fmt.Sprint(kept)}, "action": "delete"})
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["affected"], qt.Equals, float64(2))

	_, body = adm.do(http.MethodGet, "/api/admin/posts", nil)
	c.Assert(body["posts"], qt.HasLen, 0)

	status, body = adm.do(http.MethodPost, "/api/admin/moderation", map[string]any{"posts": []int64{1}, "action": "burn"})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(body["error"], qt.Equals, admin.MsgBadAction)
}

func TestAdminUsers(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	alice := f.client(c)
	alice.register("alice")
	adm := f.client(c)
	adm.login("admin", "admin-pass")

	_, body := adm.do(http.MethodGet, "/api/admin/users", nil)
	ids := map[string]int64{}
	for _, u := range body["users"].([]any) {
		user := u.(map[string]any)
		ids[user["username"].(string)] = int64(user["id"].(float64))
		c.Assert(user["password_hash"], qt.IsNil)
	}
	c.Assert(ids, qt.HasLen, 2)

	status, body := adm.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d/toggle-admin", ids["admin"]), nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(body["error"], qt.Equals, admin.MsgSelfToggle)

	status, body = adm.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", ids["admin"]), nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(body["error"], qt.Equals, admin.MsgSelfDelete)

	status, body = adm.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d/toggle-admin", ids["alice"]), nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["is_admin"], qt.Equals, true)

	status, _ = adm.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", ids["alice"]), nil)
	c.Assert(status, qt.Equals, http.StatusOK)

	status, body = adm.do(http.MethodDelete, "/api/admin/users/abc", nil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(body["error"], qt.Equals, admin.MsgBadUserID)
}

func TestCompanies(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	alice := f.client(c)
	alice.register("alice")

	status, body := alice.do(http.MethodPost, "/api/companies", map[string]any{
		"name":        "믿을만한 상점",
		"category":    "payment",
		"type":        "safe",
		"description": "<b>소액결제</b> 전문",
		"rating":      "4",
		"writer":      "mallory",
	})
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%v", body))
	id := int64(body["id"].(float64))

	status, body = alice.do(http.MethodPost, "/api/companies", map[string]any{"name": "x", "category": "payment", "type": "weird"})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(body["error"], qt.Equals, directory.MsgBadType)

	for range 2 {
		status, body = alice.do(http.MethodPost, fmt.Sprintf("/api/companies/%d/reviews", id), map[string]any{"review_type": "report", "content": "환불 지연"})
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%v", body))
	}
	status, _ = alice.do(http.MethodPost, fmt.Sprintf("/api/companies/%d/reviews", id), map[string]any{"rating": 9, "content": "좋아요"})
	c.Assert(status, qt.Equals, http.StatusOK)

	anon := f.client(c)
	status, body = anon.do(http.MethodGet, fmt.Sprintf("/api/companies/%d", id), nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	company := body["company"].(map[string]any)
	c.Assert(company["writer"], qt.Equals, "alice")
	c.Assert(company["rating"], qt.Equals, float64(4))
	c.Assert(company["report_count"], qt.Equals, float64(2))
	c.Assert(company["description"], qt.Equals, "소액결제 전문")
	reviews := body["reviews"].([]any)
	c.Assert(reviews, qt.HasLen, 3)
	c.Assert(reviews[0].(map[string]any)["rating"], qt.Equals, float64(5))

	_, body = anon.do(http.MethodGet, "/api/companies?type=safe&search="+url.QueryEscape("상점"), nil)
	c.Assert(body["companies"], qt.HasLen, 1)
	_, body = anon.do(http.MethodGet, "/api/companies?type=fraud", nil)
	c.Assert(body["companies"], qt.HasLen, 0)

	_, body = anon.do(http.MethodGet, "/api/companies/meta", nil)
	c.Assert(body["types"], qt.HasLen, len(directory.Types))

	status, _ = alice.do(http.MethodPost, fmt.Sprintf("/api/admin/companies/%d/certify", id), nil)
	c.Assert(status, qt.Equals, http.StatusForbidden)

	adm := f.client(c)
	adm.login("admin", "admin-pass")
	status, _ = adm.do(http.MethodPost, fmt.Sprintf("/api/admin/companies/%d/certify", id), nil)
	c.Assert(status, qt.Equals, http.StatusOK)

	_, body = anon.do(http.MethodGet, fmt.Sprintf("/api/companies/%d", id), nil)
	company = body["company"].(map[string]any)
	c.Assert(company["is_certified"], qt.Equals, true)
	c.Assert(company["certified_by"], qt.Equals, "admin")

	_, body = alice.do(http.MethodGet, "/api/mypage/companies", nil)
	c.Assert(body["companies"], qt.HasLen, 1)

	status, html := anonPage(anon, fmt.Sprintf("/companies/%d", id))
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(html, qt.Contains, "믿을만한 상점")
	c.Assert(html, qt.Contains, "application/ld+json")

	status, _ = adm.do(http.MethodDelete, fmt.Sprintf("/api/admin/companies/%d", id), nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	status, body = anon.do(http.MethodGet, fmt.Sprintf("/api/companies/%d", id), nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(body["error"], qt.Equals, directory.MsgNotFound)
}

func anonPage(cl *client, path string) (int, string) {
	status, resp, body := cl.get(path)
	cl.c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "text/html; charset=utf-8")
	return status, body
}

func TestUploadPost(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	alice := f.client(c)
	alice.register("alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	c.Assert(mw.WriteField("title", "사진"), qt.IsNil)
	c.Assert(mw.WriteField("content", "첨부합니다"), qt.IsNil)
	fw, err := mw.CreateFormFile(uploads.FormField, "shot.png")
	c.Assert(err, qt.IsNil)
	_, err = fw.Write([]byte("not really a png"))
	c.Assert(err, qt.IsNil)
	c.Assert(mw.Close(), qt.IsNil)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/posts", &buf)
	c.Assert(err, qt.IsNil)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body := alice.send(req)
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%v", body))
	id := int64(body["id"].(float64))

	_, body = alice.do(http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
	attachments := body["post"].(map[string]any)["attachments"].([]any)
	c.Assert(attachments, qt.HasLen, 1)
	path := attachments[0].(string)
	c.Assert(strings.HasPrefix(path, uploads.URLPrefix), qt.IsTrue)
	c.Assert(strings.HasSuffix(path, ".png"), qt.IsTrue)

	status, _, content := alice.get(path)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(content, qt.Equals, "not really a png")
}

func TestCrawlerAndMisc(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	anon := f.client(c)

	status, body := anon.do(http.MethodGet, "/api/nope", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(body["error"], qt.Equals, "Unknown API route: GET /api/nope")

	status, body = anon.do(http.MethodDelete, "/api/posts", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(body["error"], qt.Equals, "Unknown API route: DELETE /api/posts")

	status, _, robots := anon.get("/robots.txt")
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(robots, qt.Contains, "Disallow: /api/")
	c.Assert(robots, qt.Contains, "Sitemap: "+baseURL+"/sitemap.xml")

	status, resp, sitemap := anon.get("/sitemap.xml")
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get("Content-Type"), qt.Equals, "application/xml; charset=utf-8")
	c.Assert(sitemap, qt.Contains, "<loc>"+baseURL+"/trending</loc>")

	status, html := anonPage(anon, "/companies/12345")
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(html, qt.Contains, "페이지를 찾을 수 없습니다")

	status, _ = anonPage(anon, "/posts/not-a-number")
	c.Assert(status, qt.Equals, http.StatusNotFound)

	status, body = anon.do(http.MethodGet, "/healthz", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["status"], qt.Equals, "ok")

	status, body = anon.do(http.MethodGet, "/api/latest/posts", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(body["posts"], qt.HasLen, 0)
}
