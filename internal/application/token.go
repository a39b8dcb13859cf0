package application

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// sessionTokenBytes yields a 48 character URL-safe token.
const sessionTokenBytes = 36

// GenerateSessionToken returns a fresh opaque session token from crypto/rand.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}
