package handlers

import (
	"errors"

	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/cinestream/server/pkg/watchtoken"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// WatchHandler resolves signed watch links. It is public: the token itself
// is the credential.
type WatchHandler struct {
	DB *gorm.DB
}

func NewWatchHandler(db *gorm.DB) *WatchHandler {
	return &WatchHandler{DB: db}
}

func (h *WatchHandler) Redirect(c *fiber.Ctx) error {
	token, err := watchtoken.Validate(c.Params("token"))
	if err != nil {
		if errors.Is(err, watchtoken.ErrExpired) {
			return utils.Error(c, fiber.StatusUnauthorized, "watch link has expired")
		}
		logger.Warn("watch_link_rejected", map[string]interface{}{
			"reason": err.Error(),
			"ip":     c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid watch link")
	}

	movieID, err := parseUUID(token.MovieID)
	if err != nil {
		return utils.Error(c, fiber.StatusUnauthorized, "invalid watch link")
	}

	var movie models.Movie
	if err := h.DB.First(&movie, "id = ?", movieID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "movie not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching movie")
	}

	target := embedURL(&movie)
	if target == "" {
		return utils.Error(c, fiber.StatusNotFound, "movie has no playable video")
	}

	logger.InfoWithUser(token.UserID, "watch_link_redeemed", map[string]interface{}{
		"movie_id": movie.ID.String(),
	})
	return c.Redirect(target, fiber.StatusFound)
}
