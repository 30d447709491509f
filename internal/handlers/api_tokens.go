package handlers

import (
	"time"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/middleware"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxTokensPerUser = 25

type APITokenHandler struct {
	DB       *gorm.DB
	Verifier *dal.Verifier
	Audit    *services.AuditService
}

func NewAPITokenHandler(db *gorm.DB, verifier *dal.Verifier, audit *services.AuditService) *APITokenHandler {
	return &APITokenHandler{DB: db, Verifier: verifier, Audit: audit}
}

type createTokenRequest struct {
	Name      string  `json:"name" validate:"required,max=255"`
	ExpiresIn *string `json:"expiresIn" validate:"omitempty,oneof=30d 90d 365d never"`
}

type createTokenResponse struct {
	Token    string          `json:"token"`
	APIToken models.APIToken `json:"apiToken"`
}

var tokenLifetimes = map[string]time.Duration{
	"30d":  30 * 24 * time.Hour,
	"90d":  90 * 24 * time.Hour,
	"365d": 365 * 24 * time.Hour,
}

func (h *APITokenHandler) Create(c *fiber.Ctx) error {
	currentUser, err := h.Verifier.RequirePermission(c, authz.PermCreateAPIToken)
	if err != nil {
		return dal.Respond(c, err, "api_token_create")
	}

	var req createTokenRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}

	var count int64
	h.DB.Model(&models.APIToken{}).Where("user_id = ?", currentUser.ID).Count(&count)
	if count >= maxTokensPerUser {
		return utils.Error(c, fiber.StatusBadRequest, "maximum of 25 API tokens per user")
	}

	random, err := utils.RandomHex(24)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}
	rawToken := middleware.APITokenPrefix + random
	prefix := rawToken[:8]

	var expiresAt *time.Time
	if req.ExpiresIn != nil && *req.ExpiresIn != "never" {
		t := time.Now().Add(tokenLifetimes[*req.ExpiresIn])
		expiresAt = &t
	}

	apiToken := models.APIToken{
		UserID:    currentUser.ID,
		Name:      req.Name,
		TokenHash: utils.HashToken(rawToken),
		Prefix:    prefix,
		ExpiresAt: expiresAt,
	}
	if err := h.DB.Create(&apiToken).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to create API token")
	}

	logger.Info("api_token_created", map[string]interface{}{
		"user_id":  currentUser.ID.String(),
		"token_id": apiToken.ID.String(),
		"name":     apiToken.Name,
	})
	audit(c, h.Audit, currentUser, "api_token.create", "api_token", &apiToken.ID, map[string]interface{}{
		"name":   apiToken.Name,
		"prefix": prefix,
	})

	// The raw token is only ever returned here.
	return utils.Success(c, fiber.StatusCreated, createTokenResponse{
		Token:    rawToken,
		APIToken: apiToken,
	})
}

func (h *APITokenHandler) List(c *fiber.Ctx) error {
	currentUser, err := h.Verifier.RequirePermission(c, authz.PermViewAPIToken)
	if err != nil {
		return dal.Respond(c, err, "api_token_list")
	}

	p := utils.PageFromQuery(c)
	baseQuery := h.DB.Model(&models.APIToken{}).Where("user_id = ?", currentUser.ID)

	var total int64
	if err := baseQuery.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to count API tokens")
	}

	var tokens []models.APIToken
	if err := baseQuery.Order("created_at DESC").Scopes(p.Scope).Find(&tokens).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list API tokens")
	}

	return utils.Paginated(c, tokens, p.Number, p.Size, total)
}

func (h *APITokenHandler) Revoke(c *fiber.Ctx) error {
	currentUser, err := h.Verifier.RequirePermission(c, authz.PermDeleteAPIToken)
	if err != nil {
		return dal.Respond(c, err, "api_token_revoke")
	}

	tokenID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid token ID")
	}

	var apiToken models.APIToken
	if err := h.DB.First(&apiToken, "id = ? AND user_id = ?", tokenID, currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "API token not found")
	}

	if err := h.DB.Delete(&apiToken).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to revoke API token")
	}

	logger.Info("api_token_revoked", map[string]interface{}{
		"user_id":  currentUser.ID.String(),
		"token_id": apiToken.ID.String(),
		"name":     apiToken.Name,
	})
	audit(c, h.Audit, currentUser, "api_token.revoke", "api_token", &apiToken.ID, map[string]interface{}{
		"name":   apiToken.Name,
		"prefix": apiToken.Prefix,
	})

	return utils.Message(c, fiber.StatusOK, "API token revoked", nil)
}
