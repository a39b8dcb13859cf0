package oauth

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/example/club-portal/internal/application"
)

// CredentialsRefresher persists rotated credentials for a session.
type CredentialsRefresher interface {
	RefreshCredentials(ctx context.Context, token string, credentials application.ProviderCredentials) error
}

// RotatingTokenSource wraps a token source and stores each token the
// provider issues on the session it belongs to.
type RotatingTokenSource struct {
	ctx          context.Context
	base         oauth2.TokenSource
	sessionToken string
	refresher    CredentialsRefresher

	mu   sync.Mutex
	last string
	err  error
}

// NewRotatingTokenSource wraps base. current is the token the session holds
// now and is not reported again.
func NewRotatingTokenSource(ctx context.Context, base oauth2.TokenSource, current *oauth2.Token, sessionToken string, refresher CredentialsRefresher) *RotatingTokenSource {
	ts := &RotatingTokenSource{ctx: ctx, base: base, sessionToken: sessionToken, refresher: refresher}
	if current != nil {
		ts.last = current.AccessToken
	}
	return ts
}

// Token implements oauth2.TokenSource. A failure to persist the new token
// does not fail the request; it is reported by Err.
func (s *RotatingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last || s.refresher == nil {
		return token, nil
	}
	s.last = token.AccessToken
	s.err = s.refresher.RefreshCredentials(s.ctx, s.sessionToken, CredentialsFromToken(token))
	return token, nil
}

// Err returns the error of the most recent credential update, if any.
func (s *RotatingTokenSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
