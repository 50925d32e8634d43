package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSessionCookieName = "STOREFRONT_SESSION"
	defaultSessionLifetime   = 365 * 24 * time.Hour
)

type sessionKey struct{}

// SessionData is the visitor state carried in the signed session cookie. The
// ID scopes the visitor's persisted cart, the way browser storage is scoped
// to one browser profile.
type SessionData struct {
	ID        string    `json:"id"`
	Locale    string    `json:"locale,omitempty"`
	CSRFToken string    `json:"csrf,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// internal dirty flag; not serialized
	dirty bool `json:"-"`
}

// SessionConfig configures the signed cookie.
type SessionConfig struct {
	CookieName string
	SigningKey []byte
	Secure     bool
	Lifetime   time.Duration
	Logger     *zap.Logger
}

// NewSessionConfig prepares a config, generating a process-ephemeral signing
// key when key is empty (dev only).
func NewSessionConfig(key string, secure bool, logger *zap.Logger) SessionConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := SessionConfig{Secure: secure, Logger: logger}
	if strings.TrimSpace(key) != "" {
		cfg.SigningKey = []byte(key)
		return cfg
	}
	cfg.SigningKey = make([]byte, 32)
	if _, err := rand.Read(cfg.SigningKey); err != nil {
		logger.Error("session: failed to generate signing key", zap.Error(err))
		cfg.SigningKey = []byte("insecure-dev-key-please-set-STOREFRONT_SESSION_SIGNING_KEY")
	}
	logger.Warn("session: using ephemeral signing key (dev); set STOREFRONT_SESSION_SIGNING_KEY for production")
	return cfg
}

func (c SessionConfig) cookieName() string {
	if c.CookieName == "" {
		return defaultSessionCookieName
	}
	return c.CookieName
}

func (c SessionConfig) lifetime() time.Duration {
	if c.Lifetime <= 0 {
		return defaultSessionLifetime
	}
	return c.Lifetime
}

// Session loads or initializes a session and stores it in request context.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd, fromCookie := cfg.read(r)
			if sd.ID == "" {
				sd.ID = uuid.NewString()
				sd.CreatedAt = time.Now().UTC()
				sd.UpdatedAt = sd.CreatedAt
				sd.CSRFToken = newCSRFToken()
				sd.dirty = true
			}
			ctx := context.WithValue(r.Context(), sessionKey{}, sd)
			rw := NewResponseRecorder(w)
			// ensure cookie is set just before first write if needed
			rw.SetBeforeWrite(func(w http.ResponseWriter) {
				if sd.dirty || !fromCookie {
					cfg.write(w, sd)
				}
			})
			next.ServeHTTP(rw, r.WithContext(ctx))
			// If nothing was written yet (e.g., HEAD), persist cookie now
			if !rw.Wrote() && (sd.dirty || !fromCookie) {
				cfg.write(w, sd)
			}
		})
	}
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if sd, ok := r.Context().Value(sessionKey{}).(*SessionData); ok && sd != nil {
		return sd
	}
	return &SessionData{}
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

var errSessionSignature = errors.New("session: signature mismatch")

// read returns the session carried by the request cookie. Missing, tampered
// or undecodable cookies start a fresh session.
func (c SessionConfig) read(r *http.Request) (*SessionData, bool) {
	ck, err := r.Cookie(c.cookieName())
	if err != nil || ck.Value == "" {
		return &SessionData{}, false
	}
	sd, err := c.decode(ck.Value)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Debug("session: discarding cookie", zap.Error(err))
		}
		return &SessionData{}, false
	}
	return sd, true
}

func (c SessionConfig) decode(value string) (*SessionData, error) {
	payload, sig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, errors.New("session: malformed cookie")
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("session: payload: %w", err)
	}
	mac, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("session: signature: %w", err)
	}
	if !hmac.Equal(mac, c.sign(raw)) {
		return nil, errSessionSignature
	}
	sd := &SessionData{}
	if err := json.Unmarshal(raw, sd); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return sd, nil
}

func (c SessionConfig) encode(sd *SessionData) (string, error) {
	raw, err := json.Marshal(sd)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(raw) + "." + enc.EncodeToString(c.sign(raw)), nil
}

func (c SessionConfig) write(w http.ResponseWriter, sd *SessionData) {
	val, err := c.encode(sd)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Error("session: encode cookie", zap.Error(err))
		}
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(c.lifetime()),
	})
	sd.dirty = false
}

func (c SessionConfig) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.SigningKey)
	mac.Write(payload)
	return mac.Sum(nil)
}
