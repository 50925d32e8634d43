package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"
)

const (
	// CSRFCookieName is the readable cookie mirroring the session token.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName carries the token on htmx requests (see hx-headers on <body>).
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField carries the token on plain form posts.
	CSRFFormField = "csrf_token"

	csrfCookieTTL = 24 * time.Hour
)

// CSRF guards unsafe methods with a double-submit token bound to the visitor
// session. The submitted token (header, else form field) and the cookie must
// both equal the session's token.
func CSRF(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionCSRFToken(r)
			if c, err := r.Cookie(CSRFCookieName); err != nil || c.Value != token {
				http.SetCookie(w, csrfCookie(token, secure))
			}
			if requiresCSRF(r.Method) && !validCSRF(r, token) {
				WriteError(w, r, http.StatusForbidden, "invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionCSRFToken(r *http.Request) string {
	s := GetSession(r)
	if s.CSRFToken == "" {
		s.CSRFToken = newCSRFToken()
		s.MarkDirty()
	}
	return s.CSRFToken
}

func csrfCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(csrfCookieTTL / time.Second),
	}
}

func validCSRF(r *http.Request, token string) bool {
	submitted := r.Header.Get(CSRFHeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}
	c, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return false
	}
	return tokensMatch(submitted, token) && tokensMatch(c.Value, token)
}

func requiresCSRF(method string) bool {
	return method != http.MethodGet && method != http.MethodHead && method != http.MethodOptions
}

func newCSRFToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func tokensMatch(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
