package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var providerNow = time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)

type fakeIdP struct {
	server       *httptest.Server
	idToken      string
	userInfo     map[string]any
	refreshCalls atomic.Int32
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	idp := &fakeIdP{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		body := map[string]any{
			"token_type": "Bearer",
			"expires_in": 3600,
		}
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			body["access_token"] = "access-1"
			body["refresh_token"] = "refresh-1"
			if idp.idToken != "" {
				body["id_token"] = idp.idToken
			}
		case "refresh_token":
			n := idp.refreshCalls.Add(1)
			body["access_token"] = "access-refreshed-" + string(rune('0'+n))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(idp.userInfo)
	})
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (idp *fakeIdP) provider(hostedDomain string) *Provider {
	return NewProvider(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/api/oauth/callback",
		HostedDomain: hostedDomain,
		Endpoint: oauth2.Endpoint{
			AuthURL:  idp.server.URL + "/auth",
			TokenURL: idp.server.URL + "/token",
		},
		UserInfoURL: idp.server.URL + "/userinfo",
		Now:         func() time.Time { return providerNow },
	})
}

func signIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            "client-id",
		"exp":            providerNow.Add(time.Hour).Unix(),
		"email":          "ada@example.edu",
		"email_verified": true,
		"given_name":     "Ada",
		"family_name":    "Lovelace",
		"picture":        "https://example.edu/ada.png",
		"hd":             "example.edu",
	}
}

func TestProvider_AuthCodeURL(t *testing.T) {
	t.Parallel()

	idp := newFakeIdP(t)

	parsed, err := url.Parse(idp.provider("Example.edu").AuthCodeURL("state-123"))
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "example.edu", q.Get("hd"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "client-id", q.Get("client_id"))

	parsed, err = url.Parse(idp.provider("").AuthCodeURL("s"))
	require.NoError(t, err)
	assert.Empty(t, parsed.Query().Get("hd"))
}

func TestProvider_Exchange(t *testing.T) {
	t.Parallel()

	t.Run("reads the id token", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		idp.idToken = signIDToken(t, validClaims())

		identity, err := idp.provider("example.edu").Exchange(context.Background(), "good-code")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.edu", identity.Email)
		assert.Equal(t, "Ada", identity.GivenName)
		assert.Equal(t, "Lovelace", identity.FamilyName)
		assert.Equal(t, "https://example.edu/ada.png", identity.PictureURL)
		assert.Equal(t, "example.edu", identity.HostedDomain)
		assert.JSONEq(t, `"refresh-1"`, string(identity.Credentials["refresh_token"]))
		assert.Contains(t, identity.Credentials, "id_token")
		assert.Equal(t, "ada@example.edu", identity.Profile().Email)
	})

	t.Run("rejects another hosted domain", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		claims := validClaims()
		claims["hd"] = "elsewhere.edu"
		idp.idToken = signIDToken(t, claims)

		_, err := idp.provider("example.edu").Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("rejects personal accounts when a domain is required", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		claims := validClaims()
		delete(claims, "hd")
		idp.idToken = signIDToken(t, claims)

		_, err := idp.provider("example.edu").Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("rejects tokens for another client", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		claims := validClaims()
		claims["aud"] = "someone-else"
		idp.idToken = signIDToken(t, claims)

		_, err := idp.provider("").Exchange(context.Background(), "good-code")
		require.Error(t, err)
		assert.True(t, errors.Is(err, jwt.ErrTokenInvalidAudience), err)
	})

	t.Run("rejects unverified email", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		claims := validClaims()
		claims["email_verified"] = false
		idp.idToken = signIDToken(t, claims)

		_, err := idp.provider("").Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, ErrMissingEmail)
	})

	t.Run("falls back to userinfo", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		idp.userInfo = map[string]any{"email": "grace@example.edu", "given_name": "Grace", "hd": "example.edu"}

		identity, err := idp.provider("example.edu").Exchange(context.Background(), "good-code")
		require.NoError(t, err)
		assert.Equal(t, "grace@example.edu", identity.Email)
		assert.Equal(t, "Grace", identity.GivenName)
	})

	t.Run("surfaces exchange failures", func(t *testing.T) {
		t.Parallel()

		idp := newFakeIdP(t)
		_, err := idp.provider("").Exchange(context.Background(), "bad-code")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exchange authorization code")
	})
}
