// Package watchtoken issues short-lived signed links that resolve to a
// movie's embedded player without exposing the provider URL in listings.
package watchtoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cinestream/server/pkg/utils"
)

const DefaultExpiry = 10 * time.Minute

var (
	ErrInvalidFormat    = errors.New("invalid token format")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

var (
	keyMu sync.RWMutex
	key   = utils.DeriveKey("change-me-in-production", "watch-token")
)

type WatchToken struct {
	MovieID   string `json:"mid"`
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
	Nonce     string `json:"nce"`
}

// SetSecret derives the signing key from the application secret.
func SetSecret(secret string) {
	keyMu.Lock()
	defer keyMu.Unlock()
	key = utils.DeriveKey(secret, "watch-token")
}

func Generate(movieID, userID string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	tok := WatchToken{
		MovieID:   movieID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(expiry).Unix(),
		Nonce:     hex.EncodeToString(nonce),
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." + sign(data), nil
}

func Validate(tokenString string) (*WatchToken, error) {
	dataPart, sigPart, ok := strings.Cut(tokenString, ".")
	if !ok || dataPart == "" || sigPart == "" {
		return nil, ErrInvalidFormat
	}

	decoded, err := base64.RawURLEncoding.DecodeString(dataPart)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	if !hmac.Equal([]byte(sign(decoded)), []byte(sigPart)) {
		return nil, ErrInvalidSignature
	}

	var tok WatchToken
	if err := json.Unmarshal(decoded, &tok); err != nil {
		return nil, ErrInvalidFormat
	}
	if time.Now().Unix() > tok.ExpiresAt {
		return nil, ErrExpired
	}
	return &tok, nil
}

func sign(data []byte) string {
	keyMu.RLock()
	mac := hmac.New(sha256.New, key)
	keyMu.RUnlock()
	mac.Write(data)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
