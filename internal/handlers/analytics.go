package handlers

import (
	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AnalyticsHandler struct {
	Service  *services.AnalyticsService
	Verifier *dal.Verifier
}

func NewAnalyticsHandler(service *services.AnalyticsService, verifier *dal.Verifier) *AnalyticsHandler {
	return &AnalyticsHandler{Service: service, Verifier: verifier}
}

func (h *AnalyticsHandler) AdminStats(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewAnalytics); err != nil {
		return dal.Respond(c, err, "analytics_admin_stats")
	}
	stats, err := h.Service.AdminStats(c.UserContext())
	if err != nil {
		return dal.Respond(c, err, "analytics_admin_stats")
	}
	return utils.Success(c, fiber.StatusOK, stats)
}

func (h *AnalyticsHandler) TopGenres(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewAnalytics); err != nil {
		return dal.Respond(c, err, "analytics_top_genres")
	}
	genres, err := h.Service.TopGenres(c.UserContext(), c.QueryInt("limit", 10))
	if err != nil {
		return dal.Respond(c, err, "analytics_top_genres")
	}
	return utils.Success(c, fiber.StatusOK, genres)
}

func (h *AnalyticsHandler) TopUsers(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewAnalytics); err != nil {
		return dal.Respond(c, err, "analytics_top_users")
	}
	users, err := h.Service.TopUsers(c.UserContext(), c.QueryInt("limit", 10))
	if err != nil {
		return dal.Respond(c, err, "analytics_top_users")
	}
	return utils.Success(c, fiber.StatusOK, users)
}

func (h *AnalyticsHandler) RecentActivity(c *fiber.Ctx) error {
	if _, err := h.Verifier.RequirePermission(c, authz.PermViewAnalytics); err != nil {
		return dal.Respond(c, err, "analytics_recent_activity")
	}
	logs, err := h.Service.RecentActivity(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return dal.Respond(c, err, "analytics_recent_activity")
	}
	return utils.Success(c, fiber.StatusOK, logs)
}

// UserStats is open to the user themself and to admins.
func (h *AnalyticsHandler) UserStats(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if _, err := h.Verifier.VerifyOwnership(c, userID); err != nil {
		return dal.Respond(c, err, "analytics_user_stats")
	}
	stats, err := h.Service.UserStats(c.UserContext(), userID)
	if err != nil {
		return dal.Respond(c, err, "analytics_user_stats")
	}
	return utils.Success(c, fiber.StatusOK, stats)
}
