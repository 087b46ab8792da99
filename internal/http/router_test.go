package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/splax/moodjournal/internal/classifier"
	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/metrics"
	"github.com/splax/moodjournal/internal/repository/memory"
	"github.com/splax/moodjournal/internal/service/auth"
	"github.com/splax/moodjournal/internal/service/journal"
	jwtpkg "github.com/splax/moodjournal/pkg/jwt"
)

const testSecret = "router-test-secret"

type testEnv struct {
	router *Router
	store  *memory.Store
}

func newTestEnv(t *testing.T, opts Options) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	authSvc := auth.New(store, logger, auth.Config{JWTSecret: testSecret, AccessTokenTTL: time.Hour})
	journalSvc := journal.New(store, classifier.Static{Label: "joy", Score: 0.93}, logger)
	router := NewRouter(logger, authSvc, journalSvc, opts)
	t.Cleanup(router.Close)
	return testEnv{router: router, store: store}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e testEnv) signupAndLogin(t *testing.T, name, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/signup", "", map[string]string{"name": name, "email": email, "password": password})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[loginResponse](t, rec).Token
}

func TestJournalFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodPost, "/api/signup", "", map[string]string{"name": "A", "email": "a@x.com", "password": "p"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	signup := decodeBody[messageResponse](t, rec)
	if !signup.Success || signup.Message != "Signup successful" {
		t.Fatalf("unexpected signup body: %+v", signup)
	}

	rec = env.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "a@x.com", "password": "p"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decodeBody[loginResponse](t, rec)
	if !login.Success || login.Token == "" {
		t.Fatalf("unexpected login body: %+v", login)
	}
	if login.User.Name != "A" || login.User.Email != "a@x.com" || login.User.ID <= 0 {
		t.Fatalf("unexpected user summary: %+v", login.User)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("login response leaks password material: %s", rec.Body.String())
	}
	claims, err := jwtpkg.Parse(login.Token, testSecret)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "1" {
		t.Fatalf("expected subject 1, got %q", claims.Subject)
	}

	rec = env.do(t, http.MethodPost, "/api/journals", login.Token, map[string]string{"text": "I am happy"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[entryResponse](t, rec)
	if !created.Success {
		t.Fatalf("expected success")
	}
	if !domain.IsEmotion(created.Entry.Emotion) {
		t.Fatalf("unexpected emotion %q", created.Entry.Emotion)
	}
	if created.Entry.Score < 0 || created.Entry.Score > 1 {
		t.Fatalf("score out of range: %v", created.Entry.Score)
	}
	if created.Entry.Text != "I am happy" {
		t.Fatalf("unexpected text %q", created.Entry.Text)
	}
	if _, err := time.Parse(time.RFC3339Nano, created.Entry.CreatedAt); err != nil {
		t.Fatalf("createdAt not RFC3339: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/journals", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	listed := decodeBody[entriesResponse](t, rec)
	if len(listed.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(listed.Entries))
	}
	if listed.Entries[0] != created.Entry {
		t.Fatalf("listed entry %+v does not match created %+v", listed.Entries[0], created.Entry)
	}
}

func TestListJournalsEmpty(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signupAndLogin(t, "B", "b@x.com", "secret")

	rec := env.do(t, http.MethodGet, "/api/journals", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestJournalsAreScopedToTheAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.signupAndLogin(t, "Alice", "alice@x.com", "pw-a")
	bob := env.signupAndLogin(t, "Bob", "bob@x.com", "pw-b")

	if rec := env.do(t, http.MethodPost, "/api/journals", alice, map[string]string{"text": "mine"}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/journals", bob, nil)
	if got := decodeBody[entriesResponse](t, rec); len(got.Entries) != 0 {
		t.Fatalf("expected bob to see no entries, got %d", len(got.Entries))
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	cases := []struct {
		name string
		body any
		code int
		msg  string
	}{
		{name: "missing name", body: map[string]string{"email": "a@x.com", "password": "p"}, code: http.StatusBadRequest, msg: "Missing required fields"},
		{name: "blank password", body: map[string]string{"name": "A", "email": "a@x.com", "password": "   "}, code: http.StatusBadRequest, msg: "Missing required fields"},
		{name: "empty body", body: nil, code: http.StatusBadRequest, msg: "Missing required fields"},
		{name: "malformed json", body: "{not json", code: http.StatusBadRequest, msg: "invalid JSON body"},
		{name: "name too long", body: map[string]string{"name": strings.Repeat("n", domain.MaxNameLength+1), "email": "a@x.com", "password": "p"}, code: http.StatusBadRequest, msg: "Name or email too long"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/signup", "", tc.body)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			got := decodeBody[messageResponse](t, rec)
			if got.Success || got.Message != tc.msg {
				t.Fatalf("unexpected body: %+v", got)
			}
		})
	}
	if n, _ := env.store.CountUsers(context.Background()); n != 0 {
		t.Fatalf("expected no users created, got %d", n)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, Options{})
	body := map[string]string{"name": "A", "email": "dup@x.com", "password": "p"}
	if rec := env.do(t, http.MethodPost, "/api/signup", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	body["email"] = "  DUP@x.com "
	rec := env.do(t, http.MethodPost, "/api/signup", "", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[messageResponse](t, rec); got.Message != "Email already registered" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if n, _ := env.store.CountUsers(context.Background()); n != 1 {
		t.Fatalf("expected exactly one user, got %d", n)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.signupAndLogin(t, "C", "c@x.com", "right")

	rec := env.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "c@x.com"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeBody[messageResponse](t, rec); got.Message != "Missing email or password" {
		t.Fatalf("unexpected message %q", got.Message)
	}

	wrongPassword := env.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "c@x.com", "password": "wrong"})
	unknownEmail := env.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "nobody@x.com", "password": "right"})
	for _, rec := range []*httptest.ResponseRecorder{wrongPassword, unknownEmail} {
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("failure bodies differ: %q vs %q", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestJournalsRequireAuthentication(t *testing.T) {
	env := newTestEnv(t, Options{})
	cases := map[string]string{
		"missing header": "",
		"garbage token":  "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/journals", token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}

	foreign, err := jwtpkg.GenerateToken("1", "A", "a@x.com", "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if rec := env.do(t, http.MethodGet, "/api/journals", foreign, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rec.Code)
	}
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signupAndLogin(t, "D", "d@x.com", "pw")
	user, err := env.store.GetUserByEmail(context.Background(), "d@x.com")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	if err := env.store.DeleteUser(context.Background(), user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if rec := env.do(t, http.MethodGet, "/api/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateJournalRequiresText(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signupAndLogin(t, "E", "e@x.com", "pw")
	rec := env.do(t, http.MethodPost, "/api/journals", token, map[string]string{"text": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeBody[messageResponse](t, rec); got.Message != "Text is required" {
		t.Fatalf("unexpected message %q", got.Message)
	}
}

func TestMeReturnsStoredIdentity(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signupAndLogin(t, "Frank", "frank@x.com", "pw")
	rec := env.do(t, http.MethodGet, "/api/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[userResponse](t, rec)
	if got.User.Name != "Frank" || got.User.Email != "frank@x.com" {
		t.Fatalf("unexpected user %+v", got.User)
	}
}

func TestRoutingEdges(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, path := range []string{"/", "/api"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusFound {
			t.Fatalf("%s: expected 302, got %d", path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/api/health" {
			t.Fatalf("%s: unexpected location %q", path, loc)
		}
	}
	if rec := env.do(t, http.MethodGet, "/api/unknown", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/elsewhere", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/signup", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	token := env.signupAndLogin(t, "G", "g@x.com", "pw")
	if rec := env.do(t, http.MethodDelete, "/api/journals", token, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected status %v", body["status"])
	}
	if _, ok := body["components"]; ok {
		t.Fatalf("components reported without a probe")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestHealthReportsDatabase(t *testing.T) {
	up := newTestEnv(t, Options{DBHealth: func(context.Context) error { return nil }})
	rec := up.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"database":{"status":"up"}`) {
		t.Fatalf("unexpected healthy response %d: %s", rec.Code, rec.Body.String())
	}

	down := newTestEnv(t, Options{DBHealth: func(context.Context) error { return errors.New("dial tcp 10.0.0.5:5432: connection refused") }})
	rec = down.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"database":{"status":"down"}`) {
		t.Fatalf("expected database down component, got %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") || strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("health response leaks probe error: %s", rec.Body.String())
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected status %v", body["status"])
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/journals", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatalf("expected Authorization in allowed headers")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin for foreign origin %q", got)
	}
}

func TestSignupRateLimited(t *testing.T) {
	env := newTestEnv(t, Options{})
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitSignup; i++ {
		last = env.do(t, http.MethodPost, "/api/signup", "", map[string]string{})
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if got := decodeBody[messageResponse](t, last); got.Message != "rate limit exceeded" {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if last.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("unexpected limit header %q", last.Header().Get("X-RateLimit-Limit"))
	}
	// login keeps its own budget
	if rec := env.do(t, http.MethodPost, "/api/login", "", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from login, got %d", rec.Code)
	}
}

func TestLoginLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, Options{})
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitLogin; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		last = httptest.NewRecorder()
		env.router.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rotating X-Forwarded-For to stay limited, got %d", last.Code)
	}

	trusted := newTestEnv(t, Options{TrustProxyHeaders: true})
	for i := 0; i <= rateLimitLogin; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		last = httptest.NewRecorder()
		trusted.router.ServeHTTP(last, req)
	}
	if last.Code != http.StatusBadRequest {
		t.Fatalf("expected distinct forwarded clients behind a trusted proxy, got %d", last.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, Options{Metrics: metrics.New(reg, reg)})
	env.do(t, http.MethodGet, "/api/health", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `moodjournal_api_http_requests_total{method="GET",route="/api/health",status="200"} 1`) {
		t.Fatalf("request counter missing from exposition:\n%s", rec.Body.String())
	}
}
