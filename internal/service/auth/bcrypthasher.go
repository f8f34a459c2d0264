package auth

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 8

// Bcrypt password hasher
// Password is pre-hashed with sha256 so inputs longer than 72 bytes are not truncated
type BcryptHasher struct {
	// Zero means default cost (8)
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = defaultBcryptCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

// Malformed hash never matches
func (h BcryptHasher) Matches(hashedPassword string, password string) bool {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:]) == nil
}
