package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	SchemePlaintext = "plaintext"
	SchemeBcrypt    = "bcrypt"
)

var ErrUnknownScheme = errors.New("unknown password scheme")

// PasswordScheme turns a password into its stored form and checks a
// candidate against that form.
type PasswordScheme interface {
	Name() string
	Hash(password string) (string, error)
	Check(password, stored string) bool
}

// Plaintext stores passwords as entered and compares them by exact match.
// It is the default so existing user rows keep working; production deployments
// should select Bcrypt.
type Plaintext struct{}

func (Plaintext) Name() string { return SchemePlaintext }

func (Plaintext) Hash(password string) (string, error) {
	return password, nil
}

func (Plaintext) Check(password, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

// Bcrypt stores salted bcrypt hashes.
type Bcrypt struct {
	Cost int
}

func (Bcrypt) Name() string { return SchemeBcrypt }

// Hash returns a bcrypt hash of password.
func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Check validates a password against a bcrypt hash.
func (Bcrypt) Check(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ParseScheme resolves a configured scheme name. Empty selects plaintext.
func ParseScheme(name string) (PasswordScheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemePlaintext:
		return Plaintext{}, nil
	case SchemeBcrypt:
		return Bcrypt{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}
