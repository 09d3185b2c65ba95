package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers browser preflights for the booking UI. With no origins configured
// it passes requests through untouched.
func WithCORS(p CORSPolicy) Middleware {
	origins := map[string]bool{}
	wildcard := false
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			origins[o] = true
		}
	}
	if len(origins) == 0 && !wildcard {
		return func(next http.Handler) http.Handler { return next }
	}

	static := http.Header{}
	if m := joinNonEmpty(p.AllowedMethods); m != "" {
		static.Set("Access-Control-Allow-Methods", m)
	}
	if h := joinNonEmpty(p.AllowedHeaders); h != "" {
		static.Set("Access-Control-Allow-Headers", h)
	}
	if p.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	allowed := func(origin string) (string, bool) {
		if origins[strings.ToLower(origin)] {
			return origin, true
		}
		if wildcard {
			// Browsers refuse "*" together with credentials.
			if p.AllowCredentials {
				return origin, true
			}
			return "*", true
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			value, ok := allowed(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", value)
			for k, v := range static {
				h[k] = v
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinNonEmpty(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
