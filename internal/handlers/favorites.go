package handlers

import (
	"errors"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FavoritesHandler manages the current user's favorites. Every query is
// scoped to the session's user, so no ownership lookup is needed.
type FavoritesHandler struct {
	DB       *gorm.DB
	Verifier *dal.Verifier
}

func NewFavoritesHandler(db *gorm.DB, verifier *dal.Verifier) *FavoritesHandler {
	return &FavoritesHandler{DB: db, Verifier: verifier}
}

func (h *FavoritesHandler) List(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermViewFavorite)
	if err != nil {
		return dal.Respond(c, err, "favorite_list")
	}

	p := utils.PageFromQuery(c)
	query := h.DB.Model(&models.Favorite{}).Where("user_id = ?", user.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting favorites")
	}

	var favorites []models.Favorite
	err = query.Preload("Movie").Preload("Movie.Genres").Order("created_at DESC").Scopes(p.Scope).Find(&favorites).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing favorites")
	}

	for i := range favorites {
		if m := favorites[i].Movie; m != nil {
			m.Playable = embedURL(m) != ""
			m.Favorited = true
		}
	}
	return utils.Paginated(c, favorites, p.Number, p.Size, total)
}

func (h *FavoritesHandler) Add(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermCreateFavorite)
	if err != nil {
		return dal.Respond(c, err, "favorite_add")
	}

	movieID, err := parseUUID(c.Params("movieId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid movie id")
	}

	var movie models.Movie
	if err := h.DB.First(&movie, "id = ?", movieID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "movie not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching movie")
	}

	var existing models.Favorite
	err = h.DB.Where("user_id = ? AND movie_id = ?", user.ID, movieID).First(&existing).Error
	if err == nil {
		return utils.Success(c, fiber.StatusOK, existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking favorite")
	}

	favorite := models.Favorite{UserID: user.ID, MovieID: movieID}
	if err := h.DB.Create(&favorite).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed adding favorite")
	}
	return utils.Success(c, fiber.StatusCreated, favorite)
}

func (h *FavoritesHandler) Remove(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermDeleteFavorite)
	if err != nil {
		return dal.Respond(c, err, "favorite_remove")
	}

	movieID, err := parseUUID(c.Params("movieId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid movie id")
	}

	result := h.DB.Where("user_id = ? AND movie_id = ?", user.ID, movieID).Delete(&models.Favorite{})
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed removing favorite")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "favorite not found")
	}
	return utils.Message(c, fiber.StatusOK, "favorite removed", nil)
}
