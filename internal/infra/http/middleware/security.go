package middleware

import (
	"net/http"
	"strconv"
)

// SecurityHeadersConfig configures the security header set.
type SecurityHeadersConfig struct {
	// HSTSEnabled turns on Strict-Transport-Security. Only meaningful when
	// the service terminates HTTPS or sits behind a TLS-terminating proxy.
	HSTSEnabled bool
	// HSTSMaxAge is the HSTS max-age in seconds. Zero means one year.
	HSTSMaxAge int
	// HSTSIncludeSubdomains extends the HSTS policy to subdomains.
	HSTSIncludeSubdomains bool
}

// SecurityHeadersWithConfig adds hardening headers to every response. The
// API serves JSON only, so the CSP denies everything and responses are
// marked uncacheable; vulnerability data must not land in shared caches.
func SecurityHeadersWithConfig(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	static := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Permissions-Policy":      "geolocation=(), microphone=(), camera=()",
		"Cache-Control":           "no-store, no-cache, must-revalidate, proxy-revalidate",
		"Pragma":                  "no-cache",
		"Expires":                 "0",
	}

	if cfg.HSTSEnabled {
		maxAge := cfg.HSTSMaxAge
		if maxAge == 0 {
			maxAge = 31536000
		}
		hsts := "max-age=" + strconv.Itoa(maxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		static["Strict-Transport-Security"] = hsts
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range static {
				h.Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
