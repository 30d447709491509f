package dal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	sessionKey     = "session"
	currentUserKey = "currentUser"
)

const (
	SessionMethodJWT      = "jwt"
	SessionMethodAPIToken = "api_token"
)

// Session is what the auth middleware could prove about the caller: an email.
// The user row behind it is resolved lazily by the Verifier.
type Session struct {
	Email  string
	UserID uuid.UUID
	Method string
}

func SetSession(c *fiber.Ctx, session *Session) {
	c.Locals(sessionKey, session)
	if session != nil && session.UserID != uuid.Nil {
		c.Locals("userID", session.UserID.String())
	}
}

func GetSession(c *fiber.Ctx) *Session {
	session, ok := c.Locals(sessionKey).(*Session)
	if !ok || session == nil || session.Email == "" {
		return nil
	}
	return session
}
