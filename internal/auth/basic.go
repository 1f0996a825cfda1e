// Package auth provides HTTP Basic Authentication for the admin dashboard
// surface, adapted from the teacher's BasicAuthManager.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/syncwave/syncwave/internal/logging"
)

// BasicAuthManager validates Basic-auth credentials for /api/dashboard/*.
type BasicAuthManager struct {
	username     string
	passwordHash []byte
}

// NewBasicAuthManager hashes password once at startup so every request just
// does a bcrypt compare, not a re-hash.
func NewBasicAuthManager(username, password string) (*BasicAuthManager, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &BasicAuthManager{username: username, passwordHash: hash}, nil
}

// NewOrGenerated builds a manager from configured credentials, generating
// and logging a random password once when none is configured.
func NewOrGenerated(username, password string) (*BasicAuthManager, error) {
	if password == "" {
		generated, err := randomPassword(20)
		if err != nil {
			return nil, fmt.Errorf("failed to generate dashboard password: %w", err)
		}
		password = generated
		logging.Warn().Str("username", username).Str("password", password).
			Msg("auth: no DASHBOARD_PASS configured, generated a one-time password for this process")
	}
	return NewBasicAuthManager(username, password)
}

// ValidateCredentials parses and checks an Authorization header value.
func (m *BasicAuthManager) ValidateCredentials(authHeader string) (string, error) {
	if !strings.HasPrefix(authHeader, "Basic ") {
		return "", fmt.Errorf("invalid authorization header format")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return "", fmt.Errorf("failed to decode credentials")
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid credentials format")
	}
	if !m.validate(parts[0], parts[1]) {
		return "", fmt.Errorf("invalid username or password")
	}
	return parts[0], nil
}

func (m *BasicAuthManager) validate(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}

// WWWAuthenticate is the header value sent alongside a 401.
func (m *BasicAuthManager) WWWAuthenticate() string {
	return `Basic realm="syncwave", charset="UTF-8"`
}

func randomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
