// Package password hashes and checks operator passwords with bcrypt.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	dErrors "clubgate/pkg/domain-errors"
)

const MinLength = 8

// Hasher hashes with a fixed bcrypt cost.
type Hasher struct {
	cost int
	// dummy is compared against when no user matched the login, so unknown
	// users cost the same bcrypt work as wrong passwords.
	dummy []byte
}

// NewHasher builds a Hasher. Cost outside bcrypt's range falls back to
// bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("clubgate-timing-equalizer"), cost)
	if err != nil {
		panic(fmt.Sprintf("password: generate dummy hash: %v", err))
	}
	return &Hasher{cost: cost, dummy: dummy}
}

func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeWeakPassword, "password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Matches reports whether plain matches hash.
func (h *Hasher) Matches(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Equalize spends the same work as Matches without a real hash.
func (h *Hasher) Equalize(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}

// CheckStrength enforces the password policy: at least MinLength characters
// with at least one letter and one digit.
func CheckStrength(plain string) error {
	if len([]rune(plain)) < MinLength {
		return dErrors.New(dErrors.CodeWeakPassword, fmt.Sprintf("password must be at least %d characters", MinLength))
	}
	var hasLetter, hasDigit bool
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return dErrors.New(dErrors.CodeWeakPassword, "password must contain at least one letter and one digit")
	}
	return nil
}
