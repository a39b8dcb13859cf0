package testfixtures

import (
	"fmt"
	"sync"
)

// TokenGenerator yields predictable session tokens.
type TokenGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	err     error
}

// NewTokenGenerator returns a generator producing "<prefix>-1", "<prefix>-2"
// and so on. An empty prefix becomes "token".
func NewTokenGenerator(prefix string) *TokenGenerator {
	if prefix == "" {
		prefix = "token"
	}
	return &TokenGenerator{prefix: prefix}
}

// Next returns the next token, or the configured failure.
func (g *TokenGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter), nil
}

// NextFunc exposes Next in the shape application.SessionConfig expects.
func (g *TokenGenerator) NextFunc() func() (string, error) {
	if g == nil {
		return func() (string, error) { return "", nil }
	}
	return g.Next
}

// Fail makes every later call to Next return err. A nil err restores normal
// generation.
func (g *TokenGenerator) Fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

// Reset restarts the sequence.
func (g *TokenGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
