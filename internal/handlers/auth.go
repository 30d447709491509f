package handlers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	Service     *services.AuthService
	Verifier    *dal.Verifier
	Audit       *services.AuditService
	FrontendURL string
}

func NewAuthHandler(service *services.AuthService, verifier *dal.Verifier, audit *services.AuditService, frontendURL string) *AuthHandler {
	return &AuthHandler{
		Service:     service,
		Verifier:    verifier,
		Audit:       audit,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	loginURL, err := h.Service.LoginURL()
	if err != nil {
		if errors.Is(err, services.ErrOAuthNotConfigured) {
			return utils.Error(c, fiber.StatusServiceUnavailable, err.Error())
		}
		logger.Error("oauth_login_url_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed starting sign-in")
	}
	return c.Redirect(loginURL, fiber.StatusFound)
}

// GoogleCallback finishes the code flow and hands the app's own JWT to the
// frontend in the URL fragment. Failures redirect with an error code.
func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	if providerErr := c.Query("error"); providerErr != "" {
		logger.Warn("oauth_provider_error", map[string]interface{}{
			"error": providerErr,
		})
		return h.redirectError(c, "access_denied")
	}

	if err := h.Service.VerifyState(c.Query("state")); err != nil {
		logger.Warn("oauth_state_rejected", map[string]interface{}{
			"ip": c.IP(),
		})
		return h.redirectError(c, "invalid_state")
	}

	code := c.Query("code")
	if code == "" {
		return h.redirectError(c, "missing_code")
	}

	profile, err := h.Service.Exchange(c.UserContext(), code)
	if err != nil {
		logger.Error("oauth_exchange_failed", err, nil)
		return h.redirectError(c, "exchange_failed")
	}

	user, created, err := h.Service.SignIn(c.UserContext(), profile)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailNotAuthorized):
			return h.redirectError(c, "not_authorized")
		case errors.Is(err, services.ErrEmailNotVerified):
			return h.redirectError(c, "email_not_verified")
		default:
			logger.Error("sign_in_failed", err, nil)
			return h.redirectError(c, "sign_in_failed")
		}
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		logger.Error("token_generation_failed", err, nil)
		return h.redirectError(c, "sign_in_failed")
	}

	logger.InfoWithUser(user.ID.String(), "user_signed_in", map[string]interface{}{
		"email":   user.Email,
		"created": created,
	})
	audit(c, h.Audit, user, "auth.sign_in", "user", &user.ID, map[string]interface{}{
		"provider": "google",
		"created":  created,
	})

	return c.Redirect(h.FrontendURL+"/auth/callback#token="+url.QueryEscape(token), fiber.StatusFound)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.Verifier.CurrentUser(c)
	if err != nil {
		return dal.Respond(c, err, "auth_me")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":        user,
		"permissions": authz.PermissionsFor(user.Role),
	})
}

func (h *AuthHandler) redirectError(c *fiber.Ctx, code string) error {
	return c.Redirect(h.FrontendURL+"/login?error="+url.QueryEscape(code), fiber.StatusFound)
}
