package handlers

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/internal/validation"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// PosterStore is the object storage used for movie posters.
type PosterStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectName string) error
	PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// bindJSON parses and validates a request body, answering 400 itself on
// failure. The returned bool reports whether the handler may continue.
func bindJSON(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(dst); err != nil {
		return false, utils.Error(c, fiber.StatusBadRequest, validation.Message(err))
	}
	return true, nil
}

func audit(c *fiber.Ctx, svc *services.AuditService, user *models.User, action, resourceType string, resourceID *uuid.UUID, details map[string]interface{}) {
	entry := services.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		ClientIP:     c.IP(),
		RequestID:    logger.GetRequestID(c),
	}
	if user != nil {
		entry.ActorID = &user.ID
		entry.ActorEmail = user.Email
	}
	svc.LogAsync(entry)
}
