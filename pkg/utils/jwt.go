package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/cinestream/server/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "cinestream"

var (
	sessionSecret = []byte("change-me-in-production")
	sessionTTL    = 24 * time.Hour
)

var (
	ErrTokenMissingEmail    = errors.New("session token has no email")
	ErrTokenSubjectMismatch = errors.New("session token subject does not match its user")
)

// Claims carry the session email; the user row is looked up on every request
// so role changes and deletions take effect immediately.
type Claims struct {
	UserID uuid.UUID `json:"userID"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims (exp, iss, iat) pass.
func (c Claims) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return ErrTokenMissingEmail
	}
	if c.Subject != c.UserID.String() {
		return ErrTokenSubjectMismatch
	}
	return nil
}

func ConfigureJWT(secret string, expirationHours int) {
	if secret != "" {
		sessionSecret = []byte(secret)
	}
	if expirationHours > 0 {
		sessionTTL = time.Duration(expirationHours) * time.Hour
	}
}

// GenerateToken issues an HS256 session token for user.
func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  strings.ToLower(user.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sessionSecret)
}

var sessionParser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(sessionIssuer),
	jwt.WithExpirationRequired(),
	jwt.WithIssuedAt(),
	jwt.WithLeeway(30*time.Second),
)

func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := sessionParser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return sessionSecret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
