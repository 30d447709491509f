package dal

import (
	"context"
	"errors"
	"strings"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Verifier struct {
	DB *gorm.DB
}

func NewVerifier(db *gorm.DB) *Verifier {
	return &Verifier{DB: db}
}

// ResolveUser loads the user behind a session by email.
func ResolveUser(ctx context.Context, db *gorm.DB, session *Session) (*models.User, error) {
	if session == nil || session.Email == "" {
		return nil, New(Unauthorized, "unauthorized")
	}

	var user models.User
	err := db.WithContext(ctx).First(&user, "email = ?", strings.ToLower(session.Email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, New(NotFound, "user not found")
		}
		return nil, Wrap(Internal, "failed resolving user", err)
	}
	return &user, nil
}

// EnsureAdmin fails with Forbidden unless user holds the ADMIN role.
func EnsureAdmin(user *models.User) (*models.User, error) {
	if user == nil {
		return nil, New(Unauthorized, "unauthorized")
	}
	if !user.IsAdmin() {
		return nil, New(Forbidden, "admin access required")
	}
	return user, nil
}

// EnsureOwnership passes the resource owner and any admin.
func EnsureOwnership(user *models.User, resourceUserID uuid.UUID) (*models.User, error) {
	if user == nil {
		return nil, New(Unauthorized, "unauthorized")
	}
	if user.ID == resourceUserID || user.IsAdmin() {
		return user, nil
	}
	return nil, New(Forbidden, "you do not have access to this resource")
}

// EnsurePermission evaluates the static permission table for user.
func EnsurePermission(user *models.User, perm authz.Permission) (*models.User, error) {
	if user == nil {
		return nil, New(Unauthorized, "unauthorized")
	}
	if !authz.CheckPermissions(user, perm.Action, perm.Resource) {
		return nil, Newf(Forbidden, "missing permission %s", perm)
	}
	return user, nil
}

// CurrentUser resolves the request's session into a user, once per request.
func (v *Verifier) CurrentUser(c *fiber.Ctx) (*models.User, error) {
	if cached, ok := c.Locals(currentUserKey).(*models.User); ok && cached != nil {
		return cached, nil
	}

	user, err := ResolveUser(c.UserContext(), v.DB, GetSession(c))
	if err != nil {
		return nil, err
	}
	c.Locals(currentUserKey, user)
	c.Locals("userID", user.ID.String())
	return user, nil
}

func (v *Verifier) VerifyAdmin(c *fiber.Ctx) (*models.User, error) {
	user, err := v.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	return EnsureAdmin(user)
}

func (v *Verifier) VerifyOwnership(c *fiber.Ctx, resourceUserID uuid.UUID) (*models.User, error) {
	user, err := v.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	return EnsureOwnership(user, resourceUserID)
}

func (v *Verifier) RequirePermission(c *fiber.Ctx, perm authz.Permission) (*models.User, error) {
	user, err := v.CurrentUser(c)
	if err != nil {
		return nil, err
	}
	return EnsurePermission(user, perm)
}
