package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

const APITokenPrefix = "cst_"

// AuthMiddleware turns a bearer credential into a dal.Session. It proves the
// caller's email only; user lookup and role checks happen in dal.Verifier.
type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS(frontendURL string) fiber.Handler {
	origins := frontendURL
	if strings.Contains(frontendURL, "localhost") {
		loopback := strings.Replace(frontendURL, "localhost", "127.0.0.1", 1)
		origins = frontendURL + "," + loopback
	}
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Upload-Id, X-Resumable-Uri, X-Chunk-Start, X-Chunk-End, X-File-Size",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		ExposeHeaders: "X-Request-Id",
	})
}

func (a *AuthMiddleware) RequireSession(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("auth_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return dal.Respond(c, dal.New(dal.Unauthorized, "missing authorization header"), "auth")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("auth_invalid_format", map[string]interface{}{
			"ip":          c.IP(),
			"path":        c.Path(),
			"auth_header": authHeader[:min(len(authHeader), 20)] + "...",
		})
		return dal.Respond(c, dal.New(dal.Unauthorized, "invalid authorization format"), "auth")
	}

	session, err := a.authenticate(c, tokenString)
	if err != nil {
		return dal.Respond(c, err, "auth")
	}

	dal.SetSession(c, session)
	return c.Next()
}

func (a *AuthMiddleware) authenticate(c *fiber.Ctx, tokenString string) (*dal.Session, error) {
	if strings.HasPrefix(tokenString, APITokenPrefix) {
		return a.authenticateAPIToken(c, tokenString)
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return nil, dal.New(dal.Unauthorized, "invalid or expired token")
	}

	return &dal.Session{
		Email:  strings.ToLower(claims.Email),
		UserID: claims.UserID,
		Method: dal.SessionMethodJWT,
	}, nil
}

func (a *AuthMiddleware) authenticateAPIToken(c *fiber.Ctx, rawToken string) (*dal.Session, error) {
	var apiToken models.APIToken
	if err := a.DB.WithContext(c.UserContext()).First(&apiToken, "token_hash = ?", utils.HashToken(rawToken)).Error; err != nil {
		logger.Warn("api_token_not_found", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return nil, dal.New(dal.Unauthorized, "invalid API token")
	}

	if apiToken.ExpiresAt != nil && apiToken.ExpiresAt.Before(time.Now()) {
		logger.Warn("api_token_expired", map[string]interface{}{
			"ip":       c.IP(),
			"path":     c.Path(),
			"token_id": apiToken.ID.String(),
		})
		return nil, dal.New(dal.Unauthorized, "API token has expired")
	}

	// The token resolved a session, so a missing owner is NotFound like any
	// other session without a user row.
	var user models.User
	if err := a.DB.WithContext(c.UserContext()).Select("id", "email").First(&user, "id = ?", apiToken.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("api_token_orphaned", map[string]interface{}{
				"ip":       c.IP(),
				"path":     c.Path(),
				"token_id": apiToken.ID.String(),
			})
			return nil, dal.New(dal.NotFound, "user not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed resolving API token owner", err)
	}

	if err := a.DB.WithContext(c.UserContext()).Model(&apiToken).Update("last_used_at", time.Now()).Error; err != nil {
		logger.Error("api_token_touch_failed", err, map[string]interface{}{
			"token_id": apiToken.ID.String(),
		})
	}

	return &dal.Session{
		Email:  user.Email,
		UserID: user.ID,
		Method: dal.SessionMethodAPIToken,
	}, nil
}
