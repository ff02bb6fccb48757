package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"adboard/internal/apperr"
)

// bcrypt ignores input past this length.
const maxPasswordBytes = 72

// Hasher produces and checks bcrypt password digests.
type Hasher struct {
	Cost int
}

func NewHasher(cost int) Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return Hasher{Cost: cost}
}

func (h Hasher) Hash(password string) (string, error) {
	if password == "" || len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must be 1..%d bytes", apperr.ErrInvalidInput, maxPasswordBytes)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify compares password against digest. A digest that bcrypt cannot
// parse yields apperr.ErrCorruptCredential.
func (h Hasher) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", apperr.ErrCorruptCredential, err)
	}
}
