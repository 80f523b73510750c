package middleware

import (
	"net/http"
	"os"

	"github.com/synopmap/synopmap/internal/api/models"
)

// Content security policies.
const (
	APIContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

	// PageContentSecurityPolicy lets the map page load Leaflet from unpkg,
	// OpenStreetMap tiles and its own assets. Leaflet positions elements
	// with inline styles.
	PageContentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self' https://unpkg.com; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"img-src 'self' data: https://unpkg.com https://*.tile.openstreetmap.org; " +
		"connect-src 'self'; " +
		"frame-ancestors 'self'"
)

// SecurityHeaders adds standard security headers with the API policy:
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Referrer-Policy: strict-origin-when-cross-origin
//   - Permissions-Policy: geolocation=(), camera=(), microphone=()
func SecurityHeaders(next http.Handler) http.Handler {
	return securityHeaders(next, "DENY", APIContentSecurityPolicy)
}

// PageSecurityHeaders is SecurityHeaders for the HTML map page.
func PageSecurityHeaders(next http.Handler) http.Handler {
	return securityHeaders(next, "SAMEORIGIN", PageContentSecurityPolicy)
}

func securityHeaders(next http.Handler, frameOptions, csp string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", frameOptions)
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", csp)
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plain HTTP requests behind a proxy, judged by
// X-Forwarded-Proto. It is enabled by REQUIRE_TLS=true. Liveness and
// readiness probes are exempt; load balancers send them over HTTP.
func RequireTLS(next http.Handler) http.Handler {
	requireTLS := os.Getenv("REQUIRE_TLS") == "true"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireTLS || isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
			models.NewProblem(models.ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, GetRequestID(r.Context())).
				WithDetail("This endpoint requires HTTPS").
				WithInstance(r.URL.Path).
				Write(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isProbe(path string) bool {
	return path == "/v1/ops/health" || path == "/v1/ops/ready"
}
