package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/middleware"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/internal/upload"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/cinestream/server/pkg/watchtoken"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

const testMaxFileSize = 1024

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	provider *fakeProvider
	posters  *fakePosterStore
	audit    *services.AuditService
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init("disabled", "json")
		utils.ConfigureJWT("test-secret", 24)
		watchtoken.SetSecret("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cfg := &config.Config{
		JWT:    config.JWTConfig{Secret: "test-secret"},
		Server: config.ServerConfig{FrontendURL: "http://localhost:3000"},
	}

	provider := &fakeProvider{}
	posters := &fakePosterStore{objects: map[string][]byte{}}
	auditService := services.NewAuditService(db)

	t.Cleanup(func() {
		auditService.Close(time.Second)
		_ = sqlDB.Close()
	})

	coordinator := upload.NewCoordinator(
		provider,
		upload.NewGormLedger(db),
		upload.Policy{MaxFileSize: testMaxFileSize, AllowedMimeTypes: []string{"video/mp4"}},
		time.Hour,
	)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	RegisterRoutes(app, Dependencies{
		DB:          db,
		Coordinator: coordinator,
		Auth:        services.NewAuthService(db, cfg),
		Analytics:   services.NewAnalyticsService(db),
		Audit:       auditService,
		Posters:     posters,
		UploadHints: ClientHints{ChunkSize: 256 * 1024, RetryAttempts: 3, RetryDelayMs: 2000},
		FrontendURL: cfg.Server.FrontendURL,
	})

	return &testEnv{app: app, db: db, provider: provider, posters: posters, audit: auditService}
}

type fakeProvider struct {
	mu     sync.Mutex
	opened int
	chunks []upload.ChunkRequest
	meta   upload.FileMetadata
}

func (p *fakeProvider) OpenSession(_ context.Context, req upload.SessionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
	p.meta = upload.FileMetadata{
		FileID:    fmt.Sprintf("drive-file-%d", p.opened),
		Name:      req.FileName,
		MimeType:  req.MimeType,
		Size:      req.FileSize,
		EmbedLink: fmt.Sprintf("https://drive.google.com/file/d/drive-file-%d/preview", p.opened),
	}
	return fmt.Sprintf("https://upload.example.test/session/%d", p.opened), nil
}

func (p *fakeProvider) PutChunk(_ context.Context, req upload.ChunkRequest) (*upload.ChunkResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, req)
	if req.End+1 == req.Total {
		file := p.meta
		return &upload.ChunkResult{Complete: true, NextOffset: req.Total, File: &file}, nil
	}
	return &upload.ChunkResult{NextOffset: req.End + 1}, nil
}

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened, len(p.chunks)
}

type fakePosterStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakePosterStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return nil
}

func (s *fakePosterStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

func (s *fakePosterStore) PresignedGetURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://posters.example.test/" + objectName, nil
}

func (s *fakePosterStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.Role) (*models.User, string) {
	t.Helper()

	user := &models.User{
		Email:       email,
		DisplayName: "Test User",
		Role:        role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestMovie(t *testing.T, db *gorm.DB, title string, videoFileID *string, genres ...models.Genre) *models.Movie {
	t.Helper()

	movie := &models.Movie{Title: title, ReleaseYear: 1999, Genres: genres}
	if videoFileID != nil {
		setVideo(movie, videoFileID)
	}
	if err := db.Create(movie).Error; err != nil {
		t.Fatalf("failed creating test movie: %v", err)
	}
	return movie
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", body)
	}
	return data
}
