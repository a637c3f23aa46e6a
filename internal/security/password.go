// Package security covers password hashing and token generation.
package security

import "golang.org/x/crypto/bcrypt"

// HashPassword returns a salted bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the candidate matches the stored hash. The
// comparison is constant-time.
func CheckPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// dummyHash is a valid bcrypt hash at the default cost. Nothing is stored
// under it; it only exists so lookup misses can burn a comparison.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWa"

// CompareDummy runs a bcrypt comparison against a throwaway hash. Callers
// use it on account-lookup misses so authentication takes the same time
// whether or not the account exists.
func CompareDummy(candidate string) {
	_ = CheckPassword(dummyHash, candidate)
}
