package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/splax/moodjournal/internal/metrics"
	"github.com/splax/moodjournal/internal/service/auth"
	"github.com/splax/moodjournal/internal/service/journal"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	journal  journal.Service
	limiter  RateLimiter
	metrics  *metrics.Metrics
	cors       corsPolicy
	dbHealth   func(context.Context) error
	trustProxy bool
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	healthCheckTimeout = 2 * time.Second
)

// Options carries the optional collaborators of a Router.
type Options struct {
	Limiter     RateLimiter
	Metrics     *metrics.Metrics
	CORSOrigins []string
	DBHealth    func(context.Context) error
	// TrustProxyHeaders keys per-IP limits on X-Forwarded-For instead of the peer address.
	TrustProxyHeaders bool
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, journalSvc journal.Service, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		journal:  journalSvc,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		cors:     newCORSPolicy(opts.CORSOrigins),
		dbHealth:   opts.DBHealth,
		trustProxy: opts.TrustProxyHeaders,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

// ServeHTTP answers CORS preflights and delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.cors.apply(w, req) {
		return
	}
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.handle("/", r.handleIndex)
	r.handle("/api", r.handleIndex)
	r.handle("/api/", r.handleUnknownAPI)
	r.handle("/api/health", r.handleHealth)
	r.handle("/api/signup", r.withRateLimit("/api/signup", rateLimitSignup, rateWindowDefault, r.rateLimitKeyIP, r.handleSignup))
	r.handle("/api/login", r.withRateLimit("/api/login", rateLimitLogin, rateWindowDefault, r.rateLimitKeyIP, r.handleLogin))
	r.handle("/api/me", r.requireAuth(r.withRateLimit("/api/me", rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, r.handleMe)))
	r.handle("/api/journals", r.requireAuth(r.handleJournals))
	r.handle("/metrics", r.handleMetrics)
}

func (r *Router) handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.audit(pattern, h))
}

func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" && req.URL.Path != "/api" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		r.methodNotAllowed(w)
		return
	}
	http.Redirect(w, req, "/api/health", http.StatusFound)
}

func (r *Router) handleUnknownAPI(w http.ResponseWriter, req *http.Request) {
	r.notFound(w)
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload signupRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if err := payload.validate(); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if _, err := r.auth.Signup(req.Context(), payload.Name, payload.Email, payload.Password); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Success: true, Message: "Signup successful"})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload loginRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if err := payload.validate(); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	session, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, msgMissingLogin)
			return
		}
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Token:   session.Token,
		User:    newUserPayload(session.User),
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for session check", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Success: true,
		User:    userPayload{ID: info.UserID, Name: info.Name, Email: info.Email},
	})
}

func (r *Router) handleJournals(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.withRateLimit("/api/journals:read", rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, r.listJournals)(w, req)
	case http.MethodPost:
		r.withRateLimit("/api/journals:write", rateLimitUserWrite, rateWindowDefault, r.rateLimitKeyUser, r.createJournal)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) createJournal(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for journal creation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload createEntryRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	if err := payload.validate(); err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	entry, err := r.journal.Create(req.Context(), info.UserID, payload.Text)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, entryResponse{Success: true, Entry: newEntryPayload(*entry)})
}

func (r *Router) listJournals(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for journal listing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	entries, err := r.journal.List(req.Context(), info.UserID)
	if err != nil {
		writeServiceError(w, r.logger, req, err)
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, newEntryPayload(entry))
	}
	writeJSON(w, http.StatusOK, entriesResponse{Success: true, Entries: payload})
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		database := "up"
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Warn("database health probe failed", "error", err)
			database = "down"
		}
		payload["components"] = map[string]any{
			"database": map[string]any{"status": database},
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	r.metrics.Handler().ServeHTTP(w, req)
}

// audit logs every request and records it under the registered route pattern.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.ObserveRequest(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req, r.trustProxy); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			fields = append(fields, "user_id", info.UserID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
