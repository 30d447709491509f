package handlers

import (
	"errors"
	"strings"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GenresHandler struct {
	DB       *gorm.DB
	Verifier *dal.Verifier
	Audit    *services.AuditService
}

func NewGenresHandler(db *gorm.DB, verifier *dal.Verifier, audit *services.AuditService) *GenresHandler {
	return &GenresHandler{DB: db, Verifier: verifier, Audit: audit}
}

type genreRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h *GenresHandler) List(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewGenre); err != nil {
		return dal.Respond(c, err, "genre_list")
	}

	var genres []models.Genre
	if err := h.DB.Order("name ASC").Find(&genres).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing genres")
	}
	return utils.Success(c, fiber.StatusOK, genres)
}

func (h *GenresHandler) Get(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewGenre); err != nil {
		return dal.Respond(c, err, "genre_get")
	}
	genre, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "genre_get")
	}
	return utils.Success(c, fiber.StatusOK, genre)
}

func (h *GenresHandler) Create(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermCreateGenre)
	if err != nil {
		return dal.Respond(c, err, "genre_create")
	}

	var req genreRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}
	if h.nameTaken(name, nil) {
		return utils.Error(c, fiber.StatusConflict, "genre already exists")
	}

	genre := models.Genre{Name: name}
	if err := h.DB.Create(&genre).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating genre")
	}
	audit(c, h.Audit, user, "genre.create", "genre", &genre.ID, map[string]interface{}{"name": name})

	return utils.Success(c, fiber.StatusCreated, genre)
}

func (h *GenresHandler) Update(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermUpdateGenre)
	if err != nil {
		return dal.Respond(c, err, "genre_update")
	}
	genre, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "genre_update")
	}

	var req genreRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
	}
	if h.nameTaken(name, genre) {
		return utils.Error(c, fiber.StatusConflict, "genre already exists")
	}

	if err := h.DB.Model(genre).Update("name", name).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating genre")
	}
	audit(c, h.Audit, user, "genre.update", "genre", &genre.ID, map[string]interface{}{"name": name})

	genre.Name = name
	return utils.Success(c, fiber.StatusOK, genre)
}

func (h *GenresHandler) Delete(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermDeleteGenre)
	if err != nil {
		return dal.Respond(c, err, "genre_delete")
	}
	genre, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "genre_delete")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM movie_genres WHERE genre_id = ?", genre.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Genre{}, "id = ?", genre.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting genre")
	}
	audit(c, h.Audit, user, "genre.delete", "genre", &genre.ID, map[string]interface{}{"name": genre.Name})

	return utils.Message(c, fiber.StatusOK, "genre deleted", nil)
}

func (h *GenresHandler) load(rawID string) (*models.Genre, error) {
	id, err := parseUUID(rawID)
	if err != nil {
		return nil, dal.New(dal.BadRequest, "invalid genre id")
	}
	var genre models.Genre
	if err := h.DB.First(&genre, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dal.New(dal.NotFound, "genre not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed fetching genre", err)
	}
	return &genre, nil
}

func (h *GenresHandler) nameTaken(name string, except *models.Genre) bool {
	query := h.DB.Model(&models.Genre{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if except != nil {
		query = query.Where("id <> ?", except.ID)
	}
	var count int64
	query.Count(&count)
	return count > 0
}

type DirectorsHandler struct {
	DB       *gorm.DB
	Verifier *dal.Verifier
	Audit    *services.AuditService
}

func NewDirectorsHandler(db *gorm.DB, verifier *dal.Verifier, audit *services.AuditService) *DirectorsHandler {
	return &DirectorsHandler{DB: db, Verifier: verifier, Audit: audit}
}

type directorRequest struct {
	Name *string `json:"name" validate:"omitempty,max=255"`
	Bio  *string `json:"bio" validate:"omitempty,max=5000"`
}

func (h *DirectorsHandler) List(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewDirector); err != nil {
		return dal.Respond(c, err, "director_list")
	}

	p := utils.PageFromQuery(c)
	query := h.DB.Model(&models.Director{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting directors")
	}

	var directors []models.Director
	if err := query.Order("name ASC").Scopes(p.Scope).Find(&directors).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing directors")
	}
	return utils.Paginated(c, directors, p.Number, p.Size, total)
}

func (h *DirectorsHandler) Get(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewDirector); err != nil {
		return dal.Respond(c, err, "director_get")
	}
	director, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "director_get")
	}
	return utils.Success(c, fiber.StatusOK, director)
}

func (h *DirectorsHandler) Create(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermCreateDirector)
	if err != nil {
		return dal.Respond(c, err, "director_create")
	}

	var req directorRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	director := models.Director{Name: strings.TrimSpace(*req.Name), Bio: trimmedOrNil(req.Bio)}
	if err := h.DB.Create(&director).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating director")
	}
	audit(c, h.Audit, user, "director.create", "director", &director.ID, map[string]interface{}{"name": director.Name})

	return utils.Success(c, fiber.StatusCreated, director)
}

func (h *DirectorsHandler) Update(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermUpdateDirector)
	if err != nil {
		return dal.Respond(c, err, "director_update")
	}
	director, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "director_update")
	}

	var req directorRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		value := strings.TrimSpace(*req.Name)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = value
	}
	if req.Bio != nil {
		updates["bio"] = trimmedOrNil(req.Bio)
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Director{}).Where("id = ?", director.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating director")
	}
	audit(c, h.Audit, user, "director.update", "director", &director.ID, nil)

	updated, err := h.load(director.ID.String())
	if err != nil {
		return dal.Respond(c, err, "director_update")
	}
	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete detaches the director from its movies rather than deleting them.
func (h *DirectorsHandler) Delete(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermDeleteDirector)
	if err != nil {
		return dal.Respond(c, err, "director_delete")
	}
	director, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "director_delete")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Movie{}).Where("director_id = ?", director.ID).Update("director_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Director{}, "id = ?", director.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting director")
	}
	audit(c, h.Audit, user, "director.delete", "director", &director.ID, map[string]interface{}{"name": director.Name})

	return utils.Message(c, fiber.StatusOK, "director deleted", nil)
}

func (h *DirectorsHandler) load(rawID string) (*models.Director, error) {
	id, err := parseUUID(rawID)
	if err != nil {
		return nil, dal.New(dal.BadRequest, "invalid director id")
	}
	var director models.Director
	if err := h.DB.First(&director, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dal.New(dal.NotFound, "director not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed fetching director", err)
	}
	return &director, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
