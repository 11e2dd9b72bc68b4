package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	saltBytes        = 16
	keyBytes         = 32
	saltHexLen       = saltBytes * 2
)

// HashPassword derives a PBKDF2-HMAC-SHA256 key from plain with a fresh
// random salt.  The stored form is hex(salt) followed by hex(key); the hex
// salt text itself is the salt fed to PBKDF2.
func HashPassword(plain string) (string, error) {
	salt, err := randomHex(saltBytes)
	if err != nil {
		return "", err
	}
	return salt + deriveKey(plain, salt), nil
}

// VerifyPassword compares plain against a stored hash in constant time.
// Hashes produced by the earlier bcrypt scheme ("$2a$..." etc.) are still
// accepted.
func VerifyPassword(hash, plain string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	}
	if len(hash) != saltHexLen+keyBytes*2 {
		return false
	}
	salt, want := hash[:saltHexLen], hash[saltHexLen:]
	got := deriveKey(plain, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// DummyVerify burns the same CPU as a real verification.  Login calls it
// when the email is unknown so response timing does not reveal whether an
// account exists.
func DummyVerify(plain string) {
	_ = deriveKey(plain, strings.Repeat("0", saltHexLen))
}

func deriveKey(plain, salt string) string {
	dk := pbkdf2.Key([]byte(plain), []byte(salt), pbkdf2Iterations, keyBytes, sha256.New)
	return hex.EncodeToString(dk)
}

// RandomPassword returns a high-entropy throwaway secret for accounts that
// only ever sign in through an identity provider.
func RandomPassword() (string, error) {
	return randomURLSafe(32)
}

// randomBytes fills n bytes from crypto/rand.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
