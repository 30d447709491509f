package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Init("disabled", "json")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed automigrating: %v", err)
	}
	return db
}

func testConfig(admins ...string) *config.Config {
	return &config.Config{
		JWT:       config.JWTConfig{Secret: "service-test-secret"},
		Bootstrap: config.BootstrapConfig{AdminEmails: admins},
		Google: config.GoogleOAuthConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8080/api/auth/google/callback",
		},
	}
}

func TestAuditService_LogAsync(t *testing.T) {
	db := setupServiceTestDB(t)
	service := NewAuditService(db)

	userID := uuid.New()
	service.LogAsync(AuditEntry{
		ActorID:      &userID,
		ActorEmail:   "admin@example.com",
		Action:       "movie.create",
		ResourceType: "movie",
		Details:      map[string]interface{}{"title": "Heat"},
		ClientIP:     "127.0.0.1",
		RequestID:    "req-123",
	})
	service.Close(2 * time.Second)

	var logs []models.AuditLog
	db.Where("action = ?", "movie.create").Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(logs))
	}
	if logs[0].Details["title"] != "Heat" {
		t.Fatalf("details not persisted: %v", logs[0].Details)
	}
	if logs[0].ActorEmail != "admin@example.com" || logs[0].ClientIP != "127.0.0.1" {
		t.Fatalf("actor not persisted: %+v", logs[0])
	}

	// Entries after Close are dropped without panicking.
	service.LogAsync(AuditEntry{Action: "late"})
}

func TestAuthService_State(t *testing.T) {
	service := NewAuthService(nil, testConfig())

	loginURL, err := service.LoginURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("invalid login url: %v", err)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatal("expected state in login url")
	}
	if err := service.VerifyState(state); err != nil {
		t.Fatalf("expected state to verify, got %v", err)
	}

	other := NewAuthService(nil, &config.Config{JWT: config.JWTConfig{Secret: "other"}, Google: config.GoogleOAuthConfig{ClientID: "x"}})
	if err := other.VerifyState(state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected foreign state to fail, got %v", err)
	}
	for _, bad := range []string{"", "abc", "abc.def", state + "x"} {
		if err := service.VerifyState(bad); !errors.Is(err, ErrInvalidState) {
			t.Errorf("VerifyState(%q) = %v, want ErrInvalidState", bad, err)
		}
	}
}

func TestAuthService_NotConfigured(t *testing.T) {
	service := NewAuthService(nil, &config.Config{})
	if _, err := service.LoginURL(); !errors.Is(err, ErrOAuthNotConfigured) {
		t.Fatalf("expected ErrOAuthNotConfigured, got %v", err)
	}
}

func TestAuthService_SignIn(t *testing.T) {
	db := setupServiceTestDB(t)
	service := NewAuthService(db, testConfig("Root@Example.com"))
	ctx := context.Background()

	db.Create(&models.AuthorizedEmail{Email: "viewer@example.com"})

	t.Run("rejects emails outside the allow-list", func(t *testing.T) {
		_, _, err := service.SignIn(ctx, &GoogleProfile{Email: "stranger@example.com", VerifiedEmail: true})
		if !errors.Is(err, ErrEmailNotAuthorized) {
			t.Fatalf("expected ErrEmailNotAuthorized, got %v", err)
		}
	})

	t.Run("rejects unverified emails", func(t *testing.T) {
		_, _, err := service.SignIn(ctx, &GoogleProfile{Email: "viewer@example.com"})
		if !errors.Is(err, ErrEmailNotVerified) {
			t.Fatalf("expected ErrEmailNotVerified, got %v", err)
		}
	})

	t.Run("creates allow-listed user with USER role", func(t *testing.T) {
		user, created, err := service.SignIn(ctx, &GoogleProfile{Email: "Viewer@Example.com", Name: "Viewer", VerifiedEmail: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !created || user.Role != models.RoleUser || user.Email != "viewer@example.com" {
			t.Fatalf("unexpected user %+v created=%v", user, created)
		}

		again, created, err := service.SignIn(ctx, &GoogleProfile{Email: "viewer@example.com", Name: "Renamed", VerifiedEmail: true})
		if err != nil || created || again.ID != user.ID {
			t.Fatalf("expected existing user, got %+v created=%v err=%v", again, created, err)
		}
		var stored models.User
		db.First(&stored, "id = ?", user.ID)
		if stored.DisplayName != "Renamed" {
			t.Fatalf("expected display name refresh, got %q", stored.DisplayName)
		}
	})

	t.Run("bootstrap admins bypass the allow-list and become ADMIN", func(t *testing.T) {
		user, _, err := service.SignIn(ctx, &GoogleProfile{Email: "root@example.com", VerifiedEmail: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Role != models.RoleAdmin {
			t.Fatalf("expected ADMIN, got %s", user.Role)
		}
	})

	t.Run("bootstrap promotes an existing user", func(t *testing.T) {
		promote := NewAuthService(db, testConfig("viewer@example.com"))
		user, _, err := promote.SignIn(ctx, &GoogleProfile{Email: "viewer@example.com", VerifiedEmail: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var stored models.User
		db.First(&stored, "id = ?", user.ID)
		if stored.Role != models.RoleAdmin {
			t.Fatalf("expected promotion to ADMIN, got %s", stored.Role)
		}
	})
}

func TestAuthService_Exchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(GoogleProfile{ID: "g-1", Email: "viewer@example.com", Name: "Viewer", VerifiedEmail: true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	service := NewAuthService(nil, testConfig())
	service.OAuth.Endpoint = oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"}
	service.UserInfoURL = server.URL + "/userinfo"

	profile, err := service.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Email != "viewer@example.com" || !profile.VerifiedEmail {
		t.Fatalf("unexpected profile %+v", profile)
	}

	_, err = service.Exchange(context.Background(), "bad-code")
	if err == nil || !strings.Contains(err.Error(), "exchange") {
		t.Fatalf("expected exchange failure, got %v", err)
	}
}

func TestAnalyticsService(t *testing.T) {
	db := setupServiceTestDB(t)
	service := NewAnalyticsService(db)
	ctx := context.Background()

	alice := models.User{Email: "alice@example.com", Role: models.RoleAdmin}
	bob := models.User{Email: "bob@example.com", Role: models.RoleUser}
	db.Create(&alice)
	db.Create(&bob)

	drama := models.Genre{Name: "Drama"}
	crime := models.Genre{Name: "Crime"}
	db.Create(&drama)
	db.Create(&crime)

	embed := "https://drive.google.com/file/d/x/preview"
	heat := models.Movie{Title: "Heat", Genres: []models.Genre{crime, drama}, VideoEmbedURL: &embed}
	up := models.Movie{Title: "Up", Genres: []models.Genre{drama}}
	db.Create(&heat)
	db.Create(&up)

	db.Create(&models.Favorite{UserID: alice.ID, MovieID: heat.ID})
	db.Create(&models.Favorite{UserID: bob.ID, MovieID: heat.ID})
	db.Create(&models.Favorite{UserID: bob.ID, MovieID: up.ID})

	t.Run("admin stats", func(t *testing.T) {
		stats, err := service.AdminStats(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.Users != 2 || stats.Admins != 1 || stats.Movies != 2 || stats.PlayableMovies != 1 || stats.Favorites != 3 || stats.Genres != 2 {
			t.Fatalf("unexpected stats %+v", stats)
		}
	})

	t.Run("top genres", func(t *testing.T) {
		genres, err := service.TopGenres(ctx, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(genres) != 2 || genres[0].Name != "Drama" || genres[0].Favorites != 3 || genres[0].Movies != 2 {
			t.Fatalf("unexpected ranking %+v", genres)
		}
	})

	t.Run("top users", func(t *testing.T) {
		users, err := service.TopUsers(ctx, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(users) != 1 || users[0].Email != "bob@example.com" || users[0].Favorites != 2 {
			t.Fatalf("unexpected ranking %+v", users)
		}
	})

	t.Run("user stats", func(t *testing.T) {
		stats, err := service.UserStats(ctx, bob.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.Favorites != 2 || len(stats.RecentFavorites) != 2 {
			t.Fatalf("unexpected user stats %+v", stats)
		}
		if _, err := service.UserStats(ctx, uuid.New()); err == nil {
			t.Fatal("expected not found for unknown user")
		}
	})

	t.Run("recent activity", func(t *testing.T) {
		db.Create(&models.AuditLog{ActorID: &alice.ID, ActorEmail: alice.Email, Action: "movie.create", ResourceType: "movie"})
		logs, err := service.RecentActivity(ctx, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(logs) != 1 || logs[0].ActorEmail != "alice@example.com" {
			t.Fatalf("unexpected activity %+v", logs)
		}
	})
}
