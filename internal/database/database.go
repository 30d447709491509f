package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// SeedAuthorizedEmails makes sure every bootstrap admin can pass the
// sign-in allow-list on a fresh database.
func SeedAuthorizedEmails(db *gorm.DB, emails []string) error {
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}

		var existing models.AuthorizedEmail
		err := db.Where("email = ?", email).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := db.Create(&models.AuthorizedEmail{Email: email}).Error; err != nil {
			return err
		}
		logger.Info("authorized_email_seeded", map[string]interface{}{
			"email": email,
		})
	}
	return nil
}
