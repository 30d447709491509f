package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateTTL          = 10 * time.Minute
)

var (
	ErrEmailNotAuthorized = errors.New("email is not authorized to sign in")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrInvalidState       = errors.New("invalid or expired sign-in state")
	ErrOAuthNotConfigured = errors.New("google sign-in is not configured")
)

type GoogleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	VerifiedEmail bool   `json:"verified_email"`
}

// AuthService runs the Google sign-in flow and the allow-list gate.
type AuthService struct {
	DB              *gorm.DB
	OAuth           *oauth2.Config
	UserInfoURL     string
	bootstrapAdmins map[string]struct{}
	stateKey        []byte
}

func NewAuthService(db *gorm.DB, cfg *config.Config) *AuthService {
	admins := make(map[string]struct{}, len(cfg.Bootstrap.AdminEmails))
	for _, email := range cfg.Bootstrap.AdminEmails {
		admins[NormalizeEmail(email)] = struct{}{}
	}

	var oauthCfg *oauth2.Config
	if cfg.Google.ClientID != "" {
		oauthCfg = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	return &AuthService{
		DB:              db,
		OAuth:           oauthCfg,
		UserInfoURL:     googleUserInfoURL,
		bootstrapAdmins: admins,
		stateKey:        utils.DeriveKey(cfg.JWT.Secret, "oauth-state"),
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) IsBootstrapAdmin(email string) bool {
	_, ok := s.bootstrapAdmins[NormalizeEmail(email)]
	return ok
}

type oauthState struct {
	Nonce     string `json:"n"`
	ExpiresAt int64  `json:"e"`
}

// LoginURL returns Google's consent URL with a signed, expiring state.
func (s *AuthService) LoginURL() (string, error) {
	if s.OAuth == nil {
		return "", ErrOAuthNotConfigured
	}
	state, err := s.newState()
	if err != nil {
		return "", err
	}
	return s.OAuth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

func (s *AuthService) newState() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	payload, err := json.Marshal(oauthState{
		Nonce:     base64.RawURLEncoding.EncodeToString(nonce),
		ExpiresAt: time.Now().Add(stateTTL).Unix(),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload) + "." + s.signState(payload), nil
}

func (s *AuthService) VerifyState(state string) error {
	payloadPart, sig, ok := strings.Cut(state, ".")
	if !ok {
		return ErrInvalidState
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return ErrInvalidState
	}
	if !hmac.Equal([]byte(s.signState(payload)), []byte(sig)) {
		return ErrInvalidState
	}
	var st oauthState
	if err := json.Unmarshal(payload, &st); err != nil {
		return ErrInvalidState
	}
	if time.Now().Unix() > st.ExpiresAt {
		return ErrInvalidState
	}
	return nil
}

func (s *AuthService) signState(payload []byte) string {
	mac := hmac.New(sha256.New, s.stateKey)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Exchange trades the authorization code for a token and fetches the profile.
func (s *AuthService) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	if s.OAuth == nil {
		return nil, ErrOAuthNotConfigured
	}
	token, err := s.OAuth.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": "google",
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	client := s.OAuth.Client(ctx, token)
	resp, err := client.Get(s.UserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("google api returned status %d: %s", resp.StatusCode, string(body))
	}

	var profile GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SignIn admits a verified profile whose email is allow-listed, creating the
// user on first sign-in. Bootstrap admin emails are always admitted and
// promoted to ADMIN.
func (s *AuthService) SignIn(ctx context.Context, profile *GoogleProfile) (*models.User, bool, error) {
	if profile == nil || profile.Email == "" {
		return nil, false, ErrEmailNotAuthorized
	}
	if !profile.VerifiedEmail {
		return nil, false, ErrEmailNotVerified
	}

	email := NormalizeEmail(profile.Email)
	bootstrap := s.IsBootstrapAdmin(email)
	db := s.DB.WithContext(ctx)

	if !bootstrap {
		var count int64
		if err := db.Model(&models.AuthorizedEmail{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return nil, false, fmt.Errorf("check authorized email: %w", err)
		}
		if count == 0 {
			logger.Warn("sign_in_not_authorized", map[string]interface{}{
				"email": email,
			})
			return nil, false, ErrEmailNotAuthorized
		}
	}

	var user models.User
	err := db.First(&user, "email = ?", email).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("load user: %w", err)
	}

	var avatar *string
	if profile.Picture != "" {
		avatar = &profile.Picture
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		role := models.RoleUser
		if bootstrap {
			role = models.RoleAdmin
		}
		user = models.User{
			Email:       email,
			DisplayName: profile.Name,
			AvatarURL:   avatar,
			Role:        role,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		logger.Info("user_created", map[string]interface{}{
			"user_id": user.ID.String(),
			"email":   user.Email,
			"role":    string(user.Role),
		})
		return &user, true, nil
	}

	updates := map[string]interface{}{}
	if profile.Name != "" && profile.Name != user.DisplayName {
		updates["display_name"] = profile.Name
	}
	if avatar != nil && (user.AvatarURL == nil || *user.AvatarURL != *avatar) {
		updates["avatar_url"] = *avatar
	}
	if bootstrap && user.Role != models.RoleAdmin {
		updates["role"] = models.RoleAdmin
	}
	if len(updates) > 0 {
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("update user: %w", err)
		}
	}
	return &user, false, nil
}
