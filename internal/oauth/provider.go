// Package oauth signs users in through the identity provider and keeps
// their provider credentials usable after sign-in.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/example/club-portal/internal/application"
)

// DefaultUserInfoURL is the OpenID Connect userinfo endpoint of Google.
const DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var (
	// ErrDomainNotAllowed reports an account outside the configured hosted domain.
	ErrDomainNotAllowed = errors.New("account domain not allowed")
	// ErrMissingEmail reports an identity without a verified email address.
	ErrMissingEmail = errors.New("identity has no verified email")
)

// Config describes the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// HostedDomain restricts sign-in to one workspace domain when set.
	HostedDomain string

	// Endpoint and UserInfoURL default to Google.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	// HTTPClient is used for token and userinfo requests when set.
	HTTPClient *http.Client
	Now        func() time.Time
}

// Identity is the signed-in account as reported by the provider.
type Identity struct {
	Email        string
	GivenName    string
	FamilyName   string
	PictureURL   string
	HostedDomain string
	Credentials  application.ProviderCredentials
}

// Profile returns the fields stored on the user record.
func (i Identity) Profile() application.UserProfile {
	return application.UserProfile{
		Email:      i.Email,
		GivenName:  i.GivenName,
		FamilyName: i.FamilyName,
		PictureURL: i.PictureURL,
	}
}

// Provider runs the authorization code flow.
type Provider struct {
	config       oauth2.Config
	hostedDomain string
	userInfoURL  string
	httpClient   *http.Client
	now          func() time.Time
}

// NewProvider constructs a provider from cfg.
func NewProvider(cfg Config) *Provider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = endpoints.Google
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Provider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		hostedDomain: strings.ToLower(strings.TrimSpace(cfg.HostedDomain)),
		userInfoURL:  userInfoURL,
		httpClient:   cfg.HTTPClient,
		now:          now,
	}
}

func (p *Provider) context(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL returns the consent page URL carrying state. Offline access
// is requested so the provider issues a refresh token.
func (p *Provider) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if p.hostedDomain != "" {
		opts = append(opts, oauth2.SetAuthURLParam("hd", p.hostedDomain))
	}
	return p.config.AuthCodeURL(state, opts...)
}

// Exchange trades the authorization code for tokens and returns the
// account identity. Accounts outside the hosted domain are rejected with
// ErrDomainNotAllowed.
func (p *Provider) Exchange(ctx context.Context, code string) (Identity, error) {
	ctx = p.context(ctx)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	claims, err := p.identityClaims(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	identity, err := p.identityFrom(claims)
	if err != nil {
		return Identity{}, err
	}
	identity.Credentials = CredentialsFromToken(token)
	return identity, nil
}

// FetchIdentity loads the current profile through ts.
func (p *Provider) FetchIdentity(ctx context.Context, ts oauth2.TokenSource) (Identity, error) {
	claims, err := p.userInfo(p.context(ctx), ts)
	if err != nil {
		return Identity{}, err
	}
	return p.identityFrom(claims)
}

// TokenSource returns a token source for stored credentials that reports
// every newly issued token to refresher under sessionToken.
func (p *Provider) TokenSource(ctx context.Context, sessionToken string, credentials application.ProviderCredentials, refresher CredentialsRefresher) (oauth2.TokenSource, error) {
	token, err := TokenFromCredentials(credentials)
	if err != nil {
		return nil, err
	}
	ctx = p.context(ctx)
	base := p.config.TokenSource(ctx, token)
	return NewRotatingTokenSource(ctx, base, token, sessionToken, refresher), nil
}

// Refresh loads the current identity with a session's stored credentials.
// Tokens the provider rotates along the way are persisted through refresher.
func (p *Provider) Refresh(ctx context.Context, sessionToken string, credentials application.ProviderCredentials, refresher CredentialsRefresher) (Identity, error) {
	ts, err := p.TokenSource(ctx, sessionToken, credentials, refresher)
	if err != nil {
		return Identity{}, err
	}
	return p.FetchIdentity(ctx, ts)
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd"`
}

// identityClaims reads the ID token returned with the access token. The
// token arrives directly from the token endpoint over TLS, so its claims
// are validated without checking the signature. Responses without an ID
// token fall back to the userinfo endpoint.
func (p *Provider) identityClaims(ctx context.Context, token *oauth2.Token) (identityClaims, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return p.userInfo(ctx, oauth2.StaticTokenSource(token))
	}

	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return identityClaims{}, fmt.Errorf("parse id token: %w", err)
	}
	validator := jwt.NewValidator(
		jwt.WithAudience(p.config.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
		jwt.WithLeeway(time.Minute),
	)
	if err := validator.Validate(claims); err != nil {
		return identityClaims{}, fmt.Errorf("validate id token: %w", err)
	}
	return claims, nil
}

func (p *Provider) userInfo(ctx context.Context, ts oauth2.TokenSource) (identityClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return identityClaims{}, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := oauth2.NewClient(ctx, ts).Do(req)
	if err != nil {
		return identityClaims{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return identityClaims{}, fmt.Errorf("fetch userinfo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var claims identityClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return identityClaims{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return claims, nil
}

func (p *Provider) identityFrom(claims identityClaims) (Identity, error) {
	email := strings.TrimSpace(claims.Email)
	if email == "" || (claims.EmailVerified != nil && !*claims.EmailVerified) {
		return Identity{}, ErrMissingEmail
	}
	domain := strings.ToLower(claims.HostedDomain)
	if p.hostedDomain != "" && domain != p.hostedDomain {
		return Identity{}, fmt.Errorf("%w: %q", ErrDomainNotAllowed, claims.HostedDomain)
	}

	return Identity{
		Email:        email,
		GivenName:    claims.GivenName,
		FamilyName:   claims.FamilyName,
		PictureURL:   claims.Picture,
		HostedDomain: domain,
	}, nil
}
