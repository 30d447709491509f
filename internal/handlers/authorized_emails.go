package handlers

import (
	"strings"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AuthorizedEmailsHandler maintains the sign-in allow-list.
type AuthorizedEmailsHandler struct {
	DB       *gorm.DB
	Verifier *dal.Verifier
	Audit    *services.AuditService
}

func NewAuthorizedEmailsHandler(db *gorm.DB, verifier *dal.Verifier, audit *services.AuditService) *AuthorizedEmailsHandler {
	return &AuthorizedEmailsHandler{DB: db, Verifier: verifier, Audit: audit}
}

type authorizedEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func (h *AuthorizedEmailsHandler) List(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewAuthorizedEmail); err != nil {
		return dal.Respond(c, err, "authorized_email_list")
	}

	p := utils.PageFromQuery(c)
	query := h.DB.Model(&models.AuthorizedEmail{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting authorized emails")
	}

	var emails []models.AuthorizedEmail
	if err := query.Order("email ASC").Scopes(p.Scope).Find(&emails).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing authorized emails")
	}
	return utils.Paginated(c, emails, p.Number, p.Size, total)
}

func (h *AuthorizedEmailsHandler) Create(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermCreateAuthorizedEmail)
	if err != nil {
		return dal.Respond(c, err, "authorized_email_create")
	}

	var req authorizedEmailRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}
	email := services.NormalizeEmail(req.Email)

	var count int64
	h.DB.Model(&models.AuthorizedEmail{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return utils.Error(c, fiber.StatusConflict, "email is already authorized")
	}

	entry := models.AuthorizedEmail{Email: email}
	if err := h.DB.Create(&entry).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed authorizing email")
	}
	audit(c, h.Audit, user, "authorized_email.create", "authorized_email", &entry.ID, map[string]interface{}{
		"email": email,
	})

	return utils.Success(c, fiber.StatusCreated, entry)
}

// Delete removes an allow-list entry. Existing users keep their account but
// cannot sign in again.
func (h *AuthorizedEmailsHandler) Delete(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermDeleteAuthorizedEmail)
	if err != nil {
		return dal.Respond(c, err, "authorized_email_delete")
	}

	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid authorized email id")
	}

	var entry models.AuthorizedEmail
	if err := h.DB.First(&entry, "id = ?", id).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "authorized email not found")
	}
	if err := h.DB.Delete(&entry).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed removing authorized email")
	}
	audit(c, h.Audit, user, "authorized_email.delete", "authorized_email", &entry.ID, map[string]interface{}{
		"email": entry.Email,
	})

	return utils.Message(c, fiber.StatusOK, "authorized email removed", nil)
}
