// Package crypto provides hashing for admin credentials.
package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// N=16384 (2^14), r=8, p=1 are recommended for interactive logins.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// HashWithScrypt hashes an input string using scrypt with the given salt.
// The salt is lowercased before use. Returns hex-encoded hash.
func HashWithScrypt(input, salt string) (string, error) {
	saltBytes := []byte(strings.ToLower(salt))
	dk, err := scrypt.Key([]byte(input), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt key derivation failed: %w", err)
	}
	return hex.EncodeToString(dk), nil
}

// HashAdminID hashes an admin id salted with the admin's username.
func HashAdminID(adminID, username string) (string, error) {
	return HashWithScrypt(strings.TrimSpace(adminID), "admin:"+strings.TrimSpace(username))
}

// VerifyAdminID reports whether adminID hashes to storedHash for username.
func VerifyAdminID(adminID, username, storedHash string) (bool, error) {
	hash, err := HashAdminID(adminID, username)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(storedHash)) == 1, nil
}
