package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySalt = "cinestream-derived-keys"

// DeriveKey expands secret into a 32-byte key bound to purpose, so one
// configured secret can sign several token kinds without key reuse.
func DeriveKey(secret, purpose string) []byte {
	reader := hkdf.New(sha256.New, []byte(secret), []byte(keySalt), []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(fmt.Sprintf("failed to derive %s key: %v", purpose, err))
	}
	return key
}

// HashToken returns the hex sha256 digest stored for API tokens.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
