package http

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	// SessionCookieName carries the sealed session token.
	SessionCookieName = "session"
	oauthStateName    = "oauth_state"

	// The cookie outlives the session; the server decides validity.
	sessionCookieLifetime = 365 * 24 * time.Hour
	oauthStateLifetime    = 10 * time.Minute
)

var errOAuthStateMissing = errors.New("oauth state missing or expired")

// Cookies seals the session token and the OAuth flow state. All keys are
// derived from one secret with HKDF under distinct labels.
type Cookies struct {
	codec  *securecookie.SecureCookie
	state  *sessions.CookieStore
	secure bool
}

// NewCookies derives cookie keys from secret.
func NewCookies(secret string, secure bool) (*Cookies, error) {
	if len(secret) == 0 {
		return nil, errors.New("cookie secret is empty")
	}

	keys := make([][]byte, 0, 4)
	for _, spec := range []struct {
		label string
		size  int
	}{
		{"clubportal session hash", 64},
		{"clubportal session block", 32},
		{"clubportal oauth state hash", 64},
		{"clubportal oauth state block", 32},
	} {
		key, err := deriveKey([]byte(secret), spec.label, spec.size)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	codec := securecookie.New(keys[0], keys[1])
	codec.MaxAge(int(sessionCookieLifetime / time.Second))

	state := sessions.NewCookieStore(keys[2], keys[3])
	state.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(oauthStateLifetime / time.Second),
		HttpOnly: true,
		Secure:   secure,
		// The provider redirects back cross-site, so the state cookie must be
		// sent on that top-level navigation.
		SameSite: http.SameSiteLaxMode,
	}

	return &Cookies{codec: codec, state: state, secure: secure}, nil
}

func deriveKey(secret []byte, label string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", label, err)
	}
	return key, nil
}

// SetSession writes the session cookie for token.
func (c *Cookies) SetSession(w http.ResponseWriter, token string) error {
	encoded, err := c.codec.Encode(SessionCookieName, token)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(sessionCookieLifetime / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// ClearSession expires the session cookie.
func (c *Cookies) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// SessionToken returns the token sealed in the request's session cookie,
// or "" when the cookie is absent or was not produced by this server.
func (c *Cookies) SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	var token string
	if err := c.codec.Decode(SessionCookieName, cookie.Value, &token); err != nil {
		return ""
	}
	return token
}

// SaveOAuthState stores the CSRF state and the path to return to after login.
func (c *Cookies) SaveOAuthState(w http.ResponseWriter, r *http.Request, state, refer string) error {
	session, _ := c.state.New(r, oauthStateName)
	session.Values["state"] = state
	session.Values["refer"] = refer
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// TakeOAuthState reads and clears the stored OAuth flow state.
func (c *Cookies) TakeOAuthState(w http.ResponseWriter, r *http.Request) (state, refer string, err error) {
	session, err := c.state.Get(r, oauthStateName)
	if err != nil || session.IsNew {
		return "", "", errOAuthStateMissing
	}
	state, _ = session.Values["state"].(string)
	refer, _ = session.Values["refer"].(string)

	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return "", "", fmt.Errorf("clear oauth state: %w", err)
	}
	if state == "" {
		return "", "", errOAuthStateMissing
	}
	return state, refer, nil
}

// safeRefer accepts same-site absolute paths only and falls back to "/".
func safeRefer(refer string) string {
	refer = strings.TrimSpace(refer)
	if refer == "" || !strings.HasPrefix(refer, "/") {
		return "/"
	}
	if strings.HasPrefix(refer, "//") || strings.HasPrefix(refer, "/\\") || strings.ContainsAny(refer, "\r\n") {
		return "/"
	}
	return refer
}
