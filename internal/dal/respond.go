package dal

import (
	"github.com/cinestream/server/internal/metrics"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const internalMessage = "internal server error"

// Respond converts err into the JSON error envelope. Typed errors keep their
// status and message, except Internal whose message is replaced. Anything
// else is logged under tag and answered with a generic 500.
func Respond(c *fiber.Ctx, err error, tag string) error {
	dalErr, ok := As(err)
	if !ok {
		logger.Error(tag, err, map[string]interface{}{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": logger.GetRequestID(c),
		})
		return utils.Error(c, fiber.StatusInternalServerError, internalMessage)
	}

	switch dalErr.Type {
	case Unauthorized, Forbidden:
		metrics.AuthorizationFailures.WithLabelValues(dalErr.Type.String()).Inc()
	case Internal:
		logger.Error(tag, dalErr, map[string]interface{}{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": logger.GetRequestID(c),
		})
		return utils.Error(c, dalErr.StatusCode(), internalMessage)
	}

	return utils.Error(c, dalErr.StatusCode(), dalErr.Message)
}
