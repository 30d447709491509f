package handlers

import (
	"errors"
	"strings"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB       *gorm.DB
	Verifier *dal.Verifier
	Audit    *services.AuditService
}

func NewUsersHandler(db *gorm.DB, verifier *dal.Verifier, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Verifier: verifier, Audit: audit}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewUser); err != nil {
		return dal.Respond(c, err, "user_list")
	}

	p := utils.PageFromQuery(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.User{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", searchValue, searchValue)
	}
	if role := models.Role(strings.ToUpper(strings.TrimSpace(c.Query("role")))); role != "" {
		if !role.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := query.Order("created_at DESC").Scopes(p.Scope).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Number, p.Size, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewUser); err != nil {
		return dal.Respond(c, err, "user_get")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// Delete removes a user with their favorites and API tokens. An admin cannot
// delete their own account.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser, err := h.Verifier.RequirePermission(c, authz.PermDeleteUser)
	if err != nil {
		return dal.Respond(c, err, "user_delete")
	}

	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if userID == currentUser.ID {
		return utils.Error(c, fiber.StatusBadRequest, "you cannot delete your own account")
	}

	var target models.User
	if err := h.DB.First(&target, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.APIToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", map[string]interface{}{
		"target_id":    target.ID.String(),
		"target_email": target.Email,
	})
	audit(c, h.Audit, currentUser, "user.delete", "user", &target.ID, map[string]interface{}{
		"email": target.Email,
	})

	return utils.Message(c, fiber.StatusOK, "user deleted", nil)
}
