package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/models"
)

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	resp := performRequest(t, env.app, http.MethodGet, "/health", nil, nil)
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestVersion(t *testing.T) {
	env := setupTestEnv(t)
	resp := performRequest(t, env.app, http.MethodGet, "/api/version", nil, nil)
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, body)
	if data["version"] != Version || data["apiVersion"] != "v1" {
		t.Fatalf("unexpected version payload %+v", data)
	}
	limits := data["upload"].(map[string]any)
	if limits["maxFileSize"] != float64(1024) {
		t.Fatalf("expected maxFileSize 1024, got %v", limits["maxFileSize"])
	}
	if mimes := limits["allowedMimeTypes"].([]any); len(mimes) != 1 || mimes[0] != "video/mp4" {
		t.Fatalf("unexpected allowed mime types %v", mimes)
	}
	hints := limits["recommended"].(map[string]any)
	if hints["chunkSize"] != float64(256*1024) || hints["retryAttempts"] != float64(3) {
		t.Fatalf("unexpected client hints %+v", hints)
	}
}

func TestHintsFrom(t *testing.T) {
	hints := HintsFrom(config.UploadConfig{ChunkSizeMB: 8, RetryAttempts: 4, RetryDelay: 1500 * time.Millisecond})
	if hints.ChunkSize != 8*1024*1024 || hints.RetryAttempts != 4 || hints.RetryDelayMs != 1500 {
		t.Fatalf("unexpected hints %+v", hints)
	}
}

func TestAuth_Me(t *testing.T) {
	env := setupTestEnv(t)
	_, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(userToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := dataMap(t, body)
	user := data["user"].(map[string]any)
	if user["email"] != "viewer@test.com" || user["role"] != "USER" {
		t.Fatalf("unexpected user %+v", user)
	}
	perms := data["permissions"].([]any)
	for _, p := range perms {
		if p == "can:delete:movie" {
			t.Fatal("USER must not hold can:delete:movie")
		}
	}

	t.Run("session for a deleted user", func(t *testing.T) {
		ghost, ghostToken := createTestUser(t, env.db, "ghost@test.com", models.RoleUser)
		env.db.Delete(&models.User{}, "id = ?", ghost.ID)
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(ghostToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "user not found")
	})
}

func TestAuth_GoogleNotConfigured(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/google", nil, nil)
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusServiceUnavailable)
	assertEnvelopeError(t, body, "google sign-in is not configured")

	resp = performRequest(t, env.app, http.MethodGet, "/api/auth/google/callback?state=bogus&code=abc", nil, nil)
	assertStatus(t, resp, http.StatusFound)
	if got := resp.Header.Get("Location"); got != "http://localhost:3000/login?error=invalid_state" {
		t.Fatalf("unexpected redirect %q", got)
	}
	resp.Body.Close()
}

func TestUsers_AdminOnlyAndNoSelfDelete(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "admin@test.com", models.RoleAdmin)
	viewer, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)

	resp := performRequest(t, env.app, http.MethodGet, "/api/users", nil, authHeaders(userToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, body, "missing permission can:view:user")

	resp = performRequest(t, env.app, http.MethodGet, "/api/users?role=admin", nil, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if items := body["data"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 admin, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/users/"+admin.ID.String(), nil, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, body, "you cannot delete your own account")

	env.db.Create(&models.APIToken{UserID: viewer.ID, Name: "cli", Prefix: "cst_abcd", TokenHash: "hash-1"})

	resp = performRequest(t, env.app, http.MethodDelete, "/api/users/"+viewer.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	var tokens int64
	env.db.Model(&models.APIToken{}).Where("user_id = ?", viewer.ID).Count(&tokens)
	if tokens != 0 {
		t.Fatalf("expected tokens of deleted user to be removed, got %d", tokens)
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/users/"+viewer.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestAuthorizedEmails(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", models.RoleAdmin)
	_, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/authorized-emails", map[string]any{"email": "new@test.com"}, authHeaders(userToken))
	assertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/authorized-emails", map[string]any{"email": "New@Test.com"}, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	entry := dataMap(t, body)
	if entry["email"] != "new@test.com" {
		t.Fatalf("expected normalized email, got %v", entry["email"])
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/authorized-emails", map[string]any{"email": "new@test.com"}, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, body, "email is already authorized")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/authorized-emails", map[string]any{"email": "not-an-email"}, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, body, "email must be a valid email address")

	resp = performRequest(t, env.app, http.MethodDelete, "/api/authorized-emails/"+entry["id"].(string), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	var count int64
	env.db.Model(&models.AuthorizedEmail{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected allow-list to be empty, got %d", count)
	}
}

func TestFavorites(t *testing.T) {
	env := setupTestEnv(t)
	_, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)
	_, otherToken := createTestUser(t, env.db, "other@test.com", models.RoleUser)
	movie := createTestMovie(t, env.db, "Paprika", nil)
	path := "/api/favorites/" + movie.ID.String()

	resp := performRequest(t, env.app, http.MethodPost, path, nil, authHeaders(userToken))
	assertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodPost, path, nil, authHeaders(userToken))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodGet, "/api/favorites", nil, authHeaders(userToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if items := body["data"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 favorite, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/favorites", nil, authHeaders(otherToken))
	body = decodeJSONMap(t, resp)
	if items := body["data"].([]any); len(items) != 0 {
		t.Fatalf("favorites must be scoped to the session user, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodDelete, path, nil, authHeaders(otherToken))
	assertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodDelete, path, nil, authHeaders(userToken))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodPost, "/api/favorites/not-a-uuid", nil, authHeaders(userToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, body, "invalid movie id")
}

func TestAnalytics_Gates(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", models.RoleAdmin)
	viewer, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)
	other, _ := createTestUser(t, env.db, "other@test.com", models.RoleUser)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"user reads own stats", "/api/analytics/user-stats/" + viewer.ID.String(), userToken, http.StatusOK},
		{"user cannot read other stats", "/api/analytics/user-stats/" + other.ID.String(), userToken, http.StatusForbidden},
		{"admin reads any stats", "/api/analytics/user-stats/" + other.ID.String(), adminToken, http.StatusOK},
		{"user cannot read admin stats", "/api/analytics/admin-stats", userToken, http.StatusForbidden},
		{"admin reads admin stats", "/api/analytics/admin-stats", adminToken, http.StatusOK},
		{"admin reads top genres", "/api/analytics/top-genres?limit=5", adminToken, http.StatusOK},
		{"admin reads top users", "/api/analytics/top-users", adminToken, http.StatusOK},
		{"admin reads recent activity", "/api/analytics/recent-activity", adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performRequest(t, env.app, http.MethodGet, tt.path, nil, authHeaders(tt.token))
			body := decodeJSONMap(t, resp)
			assertStatus(t, resp, tt.status)
			if tt.status == http.StatusForbidden && body["success"] != false {
				t.Fatalf("expected error envelope, got %+v", body)
			}
		})
	}
}

func TestAPITokens(t *testing.T) {
	env := setupTestEnv(t)
	_, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)
	_, otherToken := createTestUser(t, env.db, "other@test.com", models.RoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/tokens", map[string]any{"name": "cli", "expiresIn": "7d"}, authHeaders(userToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, body, "expiresIn must be one of [30d 90d 365d never]")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/tokens", map[string]any{"name": "cli", "expiresIn": "30d"}, authHeaders(userToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	data := dataMap(t, body)
	raw := data["token"].(string)
	if !strings.HasPrefix(raw, "cst_") || len(raw) != 52 {
		t.Fatalf("unexpected raw token %q", raw)
	}
	tokenID := data["apiToken"].(map[string]any)["id"].(string)

	resp = performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(raw))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if dataMap(t, body)["user"].(map[string]any)["email"] != "viewer@test.com" {
		t.Fatalf("API token resolved to the wrong user: %+v", body)
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/auth/tokens/"+tokenID, nil, authHeaders(otherToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusNotFound)
	assertEnvelopeError(t, body, "API token not found")

	resp = performRequest(t, env.app, http.MethodDelete, "/api/auth/tokens/"+tokenID, nil, authHeaders(userToken))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(raw))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusUnauthorized)
	assertEnvelopeError(t, body, "invalid API token")
}

func TestGenresAndDirectors(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", models.RoleAdmin)
	_, userToken := createTestUser(t, env.db, "viewer@test.com", models.RoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/genres", map[string]any{"name": "Noir"}, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	genreID := dataMap(t, body)["id"].(string)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/genres", map[string]any{"name": "noir"}, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, body, "genre already exists")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/genres", map[string]any{"name": "Western"}, authHeaders(userToken))
	assertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodGet, "/api/genres", nil, authHeaders(userToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if items := body["data"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 genre, got %d", len(items))
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/directors", map[string]any{"name": "Jean-Pierre Melville", "bio": "  "}, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	director := dataMap(t, body)
	if _, ok := director["bio"]; ok {
		t.Fatalf("blank bio should be stored as null, got %v", director["bio"])
	}

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/directors/"+director["id"].(string), map[string]any{"bio": "French filmmaker"}, authHeaders(adminToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if dataMap(t, body)["bio"] != "French filmmaker" {
		t.Fatalf("expected bio to be updated, got %+v", body)
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/genres/"+genreID, nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = performRequest(t, env.app, http.MethodGet, "/api/genres/"+genreID, nil, authHeaders(userToken))
	body = decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusNotFound)
	assertEnvelopeError(t, body, "genre not found")
}
