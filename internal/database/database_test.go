package database

import (
	"testing"

	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestSeedAuthorizedEmails(t *testing.T) {
	logger.Init("disabled", "json")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	emails := []string{" Root@Example.com ", "", "ops@example.com"}
	if err := SeedAuthorizedEmails(db, emails); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := SeedAuthorizedEmails(db, emails); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var count int64
	db.Model(&models.AuthorizedEmail{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 authorized emails, got %d", count)
	}

	var root models.AuthorizedEmail
	if err := db.First(&root, "email = ?", "root@example.com").Error; err != nil {
		t.Fatalf("expected lowercased email to be stored: %v", err)
	}
}
