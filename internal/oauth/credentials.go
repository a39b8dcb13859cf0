package oauth

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/example/club-portal/internal/application"
)

// Credential keys follow the names Google client libraries persist, with
// the expiry as unix milliseconds.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyTokenType    = "token_type"
	keyExpiryDate   = "expiry_date"
	keyIDToken      = "id_token"
	keyScope        = "scope"
)

// CredentialsFromToken encodes token for storage on a session. Empty fields
// are omitted so a merge keeps previously stored values, such as the refresh
// token the provider only sends once.
func CredentialsFromToken(token *oauth2.Token) application.ProviderCredentials {
	creds := application.ProviderCredentials{}
	if token == nil {
		return creds
	}

	put := func(key string, value any) {
		raw, err := json.Marshal(value)
		if err == nil {
			creds[key] = raw
		}
	}

	if token.AccessToken != "" {
		put(keyAccessToken, token.AccessToken)
	}
	if token.RefreshToken != "" {
		put(keyRefreshToken, token.RefreshToken)
	}
	if token.TokenType != "" {
		put(keyTokenType, token.TokenType)
	}
	if !token.Expiry.IsZero() {
		put(keyExpiryDate, token.Expiry.UnixMilli())
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		put(keyIDToken, idToken)
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		put(keyScope, scope)
	}
	return creds
}

// TokenFromCredentials rebuilds a token from stored credentials.
func TokenFromCredentials(creds application.ProviderCredentials) (*oauth2.Token, error) {
	var token oauth2.Token

	read := func(key string, dst any) error {
		raw, ok := creds[key]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode credential %s: %w", key, err)
		}
		return nil
	}

	var expiry int64
	for key, dst := range map[string]any{
		keyAccessToken:  &token.AccessToken,
		keyRefreshToken: &token.RefreshToken,
		keyTokenType:    &token.TokenType,
		keyExpiryDate:   &expiry,
	} {
		if err := read(key, dst); err != nil {
			return nil, err
		}
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("credentials carry no access or refresh token")
	}
	if expiry > 0 {
		token.Expiry = time.UnixMilli(expiry)
	}
	return &token, nil
}
