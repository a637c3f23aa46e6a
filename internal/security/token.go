package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewSessionToken returns an opaque session token drawn from the system
// CSPRNG. Tokens carry no account material whatsoever.
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewUniqueID derives an account identifier from the username, the password
// hash, and a random salt. The result is opaque and stable for the lifetime
// of the account.
func NewUniqueID(username, passwordHash string) string {
	sum := sha256.Sum256([]byte(username + passwordHash + uuid.NewString()))
	return hex.EncodeToString(sum[:])
}
