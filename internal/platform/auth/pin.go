package auth

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ErrMismatch is returned when a secret does not match its hash.
var ErrMismatch = errors.New("secret does not match")

// ValidPIN reports whether pin is exactly four digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// HashSecret bcrypt-hashes a PIN or password.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// CheckSecret compares secret against a bcrypt hash.
func CheckSecret(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
