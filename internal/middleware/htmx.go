package middleware

import (
	"context"
	"net/http"
	"strings"
)

// HTMXRequest holds the htmx request headers handlers care about.
type HTMXRequest struct {
	Target     string
	Trigger    string
	Boosted    bool
	CurrentURL string
}

type htmxKey struct{}

// HTMX records htmx request details in the context. Requests without
// HX-Request: true are left untouched.
func HTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.Header.Get("HX-Request"), "true") {
			next.ServeHTTP(w, r)
			return
		}
		info := HTMXRequest{
			Target:     r.Header.Get("HX-Target"),
			Trigger:    r.Header.Get("HX-Trigger"),
			Boosted:    strings.EqualFold(r.Header.Get("HX-Boosted"), "true"),
			CurrentURL: r.Header.Get("HX-Current-URL"),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), htmxKey{}, info)))
	})
}

// HTMXFrom returns the htmx details of the request, if it came from htmx.
func HTMXFrom(ctx context.Context) (HTMXRequest, bool) {
	info, ok := ctx.Value(htmxKey{}).(HTMXRequest)
	return info, ok
}

// IsHTMX reports whether the request came from htmx.
func IsHTMX(ctx context.Context) bool {
	_, ok := HTMXFrom(ctx)
	return ok
}

// RequireHTMX hides fragment routes from direct navigation.
func RequireHTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "HX-Request")
		if IsHTMX(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}
