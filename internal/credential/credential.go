// Package credential hashes and checks login passwords.
//
// Hashes are unsalted hex SHA-256 digests so they stay compatible with
// existing user documents. This is not a password KDF; deployments that
// hold real credentials should migrate to bcrypt or argon2.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the hex digest stored for secret.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether secret hashes to digest.
func Verify(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(secret)), []byte(digest)) == 1
}
