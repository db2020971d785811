// Package identity assigns each browser an anonymous device id and each
// open tab a tab id. The device id owns recent-session lists and keys tutor
// rate limiting; the tab id keys workspace connections.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Cookie, header and query names.
const (
	AnonCookieName = "lastminute_anon_id"
	TabHeaderName  = "X-LastMinute-Tab-ID"
	TabQueryParam  = "tab"
	DefaultTabID   = "default"

	anonPrefix    = "anon_"
	anonCookieAge = 30 * 24 * time.Hour
)

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	tabIDPattern  = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Identity is what the middleware attaches to every request.
type Identity struct {
	UserID string
	TabID  string
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request identity. The zero value means the
// middleware did not run.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// UserIDFromContext returns the anonymous device id, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}

// TabIDFromContext returns the tab id, or DefaultTabID.
func TabIDFromContext(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok && id.TabID != "" {
		return id.TabID
	}
	return DefaultTabID
}

// Middleware resolves the device cookie (issuing one when absent or
// malformed) and the tab id, then stores both on the request context.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveUserID(r)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			// Refresh on every request so active devices keep their history.
			setAnonCookie(w, userID, isDev)

			ctx := WithIdentity(r.Context(), Identity{
				UserID: userID,
				TabID:  tabIDFromRequest(r),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitKey returns the identity used to bound tutor requests, falling
// back to the remote IP when no identity was established.
func RateLimitKey(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return IPFromRequest(r)
}

// IPFromRequest returns the remote IP without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func resolveUserID(r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		return c.Value, nil
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return anonPrefix + hex.EncodeToString(buf), nil
}

func setAnonCookie(w http.ResponseWriter, userID string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(anonCookieAge.Seconds()),
		Expires:  time.Now().Add(anonCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func tabIDFromRequest(r *http.Request) string {
	tab := r.Header.Get(TabHeaderName)
	if tab == "" {
		tab = r.URL.Query().Get(TabQueryParam)
	}
	return sanitizeTabID(tab)
}

func sanitizeTabID(id string) string {
	id = strings.TrimSpace(id)
	if !tabIDPattern.MatchString(id) {
		return DefaultTabID
	}
	return id
}
