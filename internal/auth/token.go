// Package auth hashes and verifies the operator admin token. The server
// stores only an argon2id hash; the plaintext token appears in requests
// exclusively.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	keyLen       = 32
	saltLen      = 32
)

// HashToken derives a salted argon2id hash of token, hex-encoded with the
// salt prepended. Suitable for storing in configuration.
func HashToken(token string) string {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, keyLen)
	return hex.EncodeToString(append(salt, hash...))
}

// VerifyToken reports whether token matches the stored salted hash.
func VerifyToken(token, storedHex string) bool {
	stored, err := hex.DecodeString(storedHex)
	if err != nil || len(stored) != saltLen+keyLen {
		return false
	}
	salt, hash := stored[:saltLen], stored[saltLen:]
	computed := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, keyLen)
	return hmac.Equal(hash, computed)
}
