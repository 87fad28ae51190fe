package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	"comingsoon/internal/feed"
	"comingsoon/internal/identity"
	"comingsoon/internal/intake"
	"comingsoon/internal/metrics"
	"comingsoon/internal/model"
	"comingsoon/internal/storage"
	"comingsoon/internal/view"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testEmail    = "admin@example.com"
	testPassword = "launch-day-2026"
)

// flakySource fails every read once broken is set.
type flakySource struct {
	feed.Source
	broken atomic.Bool
}

func (f *flakySource) ListDocuments(ctx context.Context) ([]model.Document, error) {
	if f.broken.Load() {
		return nil, errors.New("database is locked")
	}
	return f.Source.ListDocuments(ctx)
}

func (f *flakySource) Revision(ctx context.Context) (model.Revision, error) {
	if f.broken.Load() {
		return model.Revision{}, errors.New("database is locked")
	}
	return f.Source.Revision(ctx)
}

type testEnv struct {
	srv     *Server
	store   *storage.SQLite
	source  *flakySource
	watcher *feed.Watcher
	metrics *metrics.Registry
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := discardLogger()

	store, err := storage.NewSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	src := &flakySource{Source: store}
	w := feed.NewWatcher(src, log)
	w.SetPollInterval(20 * time.Millisecond)
	w.SetRecorder(m)

	gate := identity.New(store, []byte(testSecret), time.Hour)
	gate.SetCost(bcrypt.MinCost)
	if err := gate.EnsureAdmin(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	srv, err := New(Config{Addr: "127.0.0.1:0"}, Deps{
		Intake:    intake.NewHandler(store, log, intake.WithNotifier(w), intake.WithRecorder(m)),
		Gate:      gate,
		Feed:      w,
		Documents: store,
		Metrics:   m,
		Log:       log,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{srv: srv, store: store, source: src, watcher: w, metrics: m}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, email, country string, at time.Time) string {
	t.Helper()
	id, err := e.store.AppendSubscriber(context.Background(), model.SubscriberRecord{
		Email:      email,
		CapturedAt: at,
		Network:    model.Network{IP: "198.51.100.7", Country: country, City: "Austin", Region: "Texas"},
		Request:    model.Request{Host: "example.com", Path: "/subscribe", Referer: model.Direct},
		Source:     model.SourceComingSoon,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// signIn returns the session cookie of a successful sign-in.
func (e *testEnv) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(loginRequest(testEmail, testPassword))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("sign in: expected 303, got %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	t.Fatal("sign in: no session cookie")
	return nil
}

func authed(method, target string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(cookie)
	return req
}

func requireContains(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Errorf("body missing %q, got:\n%s", want, body)
	}
}

var wantSecurityHeaders = map[string]string{
	"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline' https:; style-src 'self' 'unsafe-inline' https:; img-src 'self' data: https:; font-src 'self' https:; object-src 'none'; frame-ancestors 'none'; base-uri 'self';",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains; preload",
	"X-Frame-Options":           "SAMEORIGIN",
	"X-Content-Type-Options":    "nosniff",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
	"X-Xss-Protection":          "1; mode=block",
}

func TestSecurityHeaders(t *testing.T) {
	e := newTestEnv(t)

	for _, target := range []string{"/", "/admin", "/does-not-exist", "/healthz"} {
		t.Run(target, func(t *testing.T) {
			rec := e.do(httptest.NewRequest(http.MethodGet, target, nil))
			for k, v := range wantSecurityHeaders {
				if diff := cmp.Diff(v, rec.Header().Get(k)); diff != "" {
					t.Errorf("%s mismatch (-want +got):\n%s", k, diff)
				}
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestRequestIDReused(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := e.do(req)
	if diff := cmp.Diff("req-42", rec.Header().Get("X-Request-ID")); diff != "" {
		t.Errorf("X-Request-ID mismatch (-want +got):\n%s", diff)
	}
}

func TestHomePage(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	requireContains(t, rec.Body.String(), "Connecting the Future")
	requireContains(t, rec.Body.String(), `id="subscribe-form"`)
	requireContains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestSubscribeRoutes(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/subscribe", "/api/subscribe"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"lead@example.com"}`))
		req.Header.Set("CF-IPCountry", "NL")
		rec := e.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rec.Code, rec.Body)
		}
	}

	rec := e.do(httptest.NewRequest(http.MethodPost, "/subscribe", strings.NewReader(`{"email":"not-an-email"}`)))
	if diff := cmp.Diff(http.StatusBadRequest, rec.Code); diff != "" {
		t.Errorf("invalid email status mismatch (-want +got):\n%s", diff)
	}

	docs, err := e.store.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(2, len(docs)); diff != "" {
		t.Errorf("document count mismatch (-want +got):\n%s", diff)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/subscribe", nil))
	if diff := cmp.Diff(http.StatusMethodNotAllowed, rec.Code); diff != "" {
		t.Errorf("GET /subscribe status mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminRequiresSignIn(t *testing.T) {
	e := newTestEnv(t)
	id := e.seed(t, "lead@example.com", "US", time.Now().UTC())

	rec := e.do(httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	requireContains(t, rec.Body.String(), "Admin access")
	if strings.Contains(rec.Body.String(), "lead@example.com") {
		t.Error("login page leaked visitor data")
	}

	tests := []struct {
		target string
		code   int
	}{
		{"/admin/api/visitors", http.StatusUnauthorized},
		{"/admin/api/visitors/" + id, http.StatusUnauthorized},
		{"/admin/feed.atom", http.StatusUnauthorized},
		{"/admin/feed", http.StatusUnauthorized},
		{"/admin/visitors/" + id, http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := e.do(httptest.NewRequest(http.MethodGet, tt.target, nil))
			if diff := cmp.Diff(tt.code, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}

	garbage := &http.Cookie{Name: sessionCookie, Value: "not-a-token"}
	rec = e.do(authed(http.MethodGet, "/admin/api/visitors", garbage))
	if diff := cmp.Diff(http.StatusUnauthorized, rec.Code); diff != "" {
		t.Errorf("garbage cookie status mismatch (-want +got):\n%s", diff)
	}
}

func TestLoginFlow(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "lead@example.com", "US", time.Now().UTC())

	rec := e.do(loginRequest(testEmail, "wrong"))
	if diff := cmp.Diff(http.StatusUnauthorized, rec.Code); diff != "" {
		t.Errorf("bad password status mismatch (-want +got):\n%s", diff)
	}
	requireContains(t, rec.Body.String(), "Invalid email or password.")
	requireContains(t, rec.Body.String(), `value="admin@example.com"`)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("failed sign-in must not set a cookie")
	}

	rec = e.do(loginRequest(testEmail, testPassword))
	if diff := cmp.Diff(http.StatusSeeOther, rec.Code); diff != "" {
		t.Fatalf("sign in status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("/admin", rec.Header().Get("Location")); diff != "" {
		t.Errorf("redirect mismatch (-want +got):\n%s", diff)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != sessionCookie || !c.HttpOnly || c.SameSite != http.SameSiteStrictMode || c.Path != "/admin" {
		t.Errorf("unexpected session cookie attributes: %+v", c)
	}
	session := &http.Cookie{Name: c.Name, Value: c.Value}

	rec = e.do(authed(http.MethodGet, "/admin", session))
	requireContains(t, rec.Body.String(), "lead@example.com")
	requireContains(t, rec.Body.String(), testEmail)

	rec = e.do(authed(http.MethodPost, "/admin/logout", session))
	if diff := cmp.Diff(http.StatusSeeOther, rec.Code); diff != "" {
		t.Errorf("logout status mismatch (-want +got):\n%s", diff)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("expected a cleared cookie, got %+v", cleared)
	}

	rec = e.do(authed(http.MethodGet, "/admin/api/visitors", session))
	if diff := cmp.Diff(http.StatusUnauthorized, rec.Code); diff != "" {
		t.Errorf("signed-out session status mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(1.0, testutil.ToFloat64(e.metrics.SignIns.WithLabelValues(metrics.ResultError))); diff != "" {
		t.Errorf("failed sign-ins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1.0, testutil.ToFloat64(e.metrics.SignIns.WithLabelValues(metrics.ResultOK))); diff != "" {
		t.Errorf("successful sign-ins mismatch (-want +got):\n%s", diff)
	}
}

func TestDashboardFeedFailure(t *testing.T) {
	e := newTestEnv(t)
	session := e.signIn(t)
	e.source.broken.Store(true)

	rec := e.do(authed(http.MethodGet, "/admin", session))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	requireContains(t, rec.Body.String(), `data-state="failed"`)
	requireContains(t, rec.Body.String(), "Live data is unavailable")

	rec = e.do(authed(http.MethodGet, "/admin/api/visitors", session))
	if diff := cmp.Diff(http.StatusServiceUnavailable, rec.Code); diff != "" {
		t.Errorf("json status mismatch (-want +got):\n%s", diff)
	}
}

func TestVisitorDetail(t *testing.T) {
	e := newTestEnv(t)
	session := e.signIn(t)
	id := e.seed(t, "lead@example.com", "US", time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC))

	rec := e.do(authed(http.MethodGet, "/admin/visitors/"+id, session))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		view.GroupContact, view.GroupNetwork, view.GroupLocation, view.GroupRequest, view.GroupDevice,
		"lead@example.com", "198.51.100.7", "Aug 1, 2026, 10:30 UTC",
	} {
		requireContains(t, body, want)
	}

	rec = e.do(authed(http.MethodGet, "/admin/visitors/missing", session))
	if diff := cmp.Diff(http.StatusNotFound, rec.Code); diff != "" {
		t.Errorf("missing visitor status mismatch (-want +got):\n%s", diff)
	}
	requireContains(t, rec.Body.String(), "No visitor selected.")

	rec = e.do(authed(http.MethodGet, "/admin/api/visitors/"+id, session))
	var d view.Detail
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if diff := cmp.Diff(id, d.ID); diff != "" {
		t.Errorf("detail id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(5, len(d.Groups)); diff != "" {
		t.Errorf("group count mismatch (-want +got):\n%s", diff)
	}
}

func TestVisitorsJSON(t *testing.T) {
	e := newTestEnv(t)
	session := e.signIn(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	e.seed(t, "a@example.com", "US", base)
	e.seed(t, "b@example.com", "CA", base.Add(time.Minute))
	e.seed(t, "c@example.com", "", base.Add(2*time.Minute))

	rec := e.do(authed(http.MethodGet, "/admin/api/visitors", session))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got view.Dashboard
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(view.StateReady, got.State); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, got.Total); diff != "" {
		t.Errorf("total mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, got.Countries); diff != "" {
		t.Errorf("countries mismatch (-want +got):\n%s", diff)
	}
	var emails []string
	for _, r := range got.Rows {
		emails = append(emails, r.Email)
	}
	if diff := cmp.Diff([]string{"c@example.com", "b@example.com", "a@example.com"}, emails); diff != "" {
		t.Errorf("row order mismatch (-want +got):\n%s", diff)
	}
}

func TestAtomExport(t *testing.T) {
	e := newTestEnv(t)
	session := e.signIn(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	older := e.seed(t, "first@example.com", "US", base)
	e.seed(t, "second@example.com", "DE", base.Add(time.Hour))

	rec := e.do(authed(http.MethodGet, "/admin/feed.atom", session))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	requireContains(t, rec.Header().Get("Content-Type"), "application/atom+xml")

	parsed, err := gofeed.NewParser().ParseString(rec.Body.String())
	if err != nil {
		t.Fatalf("parse atom: %v", err)
	}
	if diff := cmp.Diff("atom", parsed.FeedType); diff != "" {
		t.Errorf("feed type mismatch (-want +got):\n%s", diff)
	}
	var titles []string
	for _, item := range parsed.Items {
		titles = append(titles, item.Title)
	}
	if diff := cmp.Diff([]string{"second@example.com", "first@example.com"}, titles); diff != "" {
		t.Errorf("item titles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("http://example.com/admin/visitors/"+older, parsed.Items[1].Link); diff != "" {
		t.Errorf("item link mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Errorf("healthy status mismatch (-want +got):\n%s", diff)
	}

	e.source.broken.Store(true)
	rec = e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if diff := cmp.Diff(http.StatusServiceUnavailable, rec.Code); diff != "" {
		t.Errorf("unhealthy status mismatch (-want +got):\n%s", diff)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(httptest.NewRequest(http.MethodGet, "/", nil))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	requireContains(t, rec.Body.String(), `comingsoon_http_request_duration_seconds_count{code="2xx",route="/"} 1`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
