package httpx

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
)

type corsPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newCORSPolicy(origins []string) corsPolicy {
	policy := corsPolicy{origins: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			policy.any = true
			continue
		}
		policy.origins[origin] = struct{}{}
	}
	return policy
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when the
// origin is not permitted.
func (p corsPolicy) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if p.any {
		return "*"
	}
	if _, ok := p.origins[strings.TrimRight(origin, "/")]; ok {
		return origin
	}
	return ""
}

// apply writes CORS headers for /api requests and reports whether the request
// was a preflight that has been answered.
func (p corsPolicy) apply(w http.ResponseWriter, req *http.Request) bool {
	if !strings.HasPrefix(req.URL.Path, "/api") {
		return false
	}
	headers := w.Header()
	if allowed := p.allowOrigin(req.Header.Get("Origin")); allowed != "" {
		headers.Set("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			headers.Add("Vary", "Origin")
		}
	}
	if req.Method != http.MethodOptions || req.Header.Get("Access-Control-Request-Method") == "" {
		return false
	}
	headers.Set("Access-Control-Allow-Methods", corsAllowMethods)
	headers.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	headers.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
	return true
}
