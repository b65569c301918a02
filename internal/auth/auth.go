// Package auth handles reviewer identity: a static user roster checked by
// salted password hash, JWT session tokens, and the HTTP middleware that
// puts the caller's identity on the request context.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/clarity-dx/referral-portal/internal/config"
)

// User is an authenticated portal reviewer.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == "admin" }

// IdentityProvider authenticates credentials against the user roster.
type IdentityProvider interface {
	Authenticate(email, password string) (*User, error)
	ByID(id string) (*User, bool)
}

// ErrBadCredentials is returned for an unknown email or wrong password.
// The two cases are deliberately indistinguishable to the caller.
var ErrBadCredentials = eris.New("auth: invalid email or password")

// StaticProvider serves the user roster from configuration. Passwords are
// stored as hex SHA-256 over salt+password.
type StaticProvider struct {
	users []config.UserConfig
}

// NewStaticProvider wraps the configured roster.
func NewStaticProvider(users []config.UserConfig) *StaticProvider {
	return &StaticProvider{users: users}
}

// Authenticate checks the email and password against the roster.
func (p *StaticProvider) Authenticate(email, password string) (*User, error) {
	for _, u := range p.users {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if !checkPassword(u.Salt, password, u.PasswordSHA256) {
			return nil, ErrBadCredentials
		}
		return &User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, nil
	}
	return nil, ErrBadCredentials
}

// ByID looks a user up by id.
func (p *StaticProvider) ByID(id string) (*User, bool) {
	for _, u := range p.users {
		if u.ID == id {
			return &User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, true
		}
	}
	return nil, false
}

func checkPassword(salt, password, wantHex string) bool {
	sum := sha256.Sum256([]byte(salt + password))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(wantHex))) == 1
}

// HashPassword produces the roster representation of a password, for
// seeding config files.
func HashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}
