package services

import (
	"context"
	"errors"
	"time"

	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnalyticsService struct {
	DB *gorm.DB
}

func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{DB: db}
}

type AdminStats struct {
	Users            int64 `json:"users"`
	Admins           int64 `json:"admins"`
	Movies           int64 `json:"movies"`
	PlayableMovies   int64 `json:"playableMovies"`
	Genres           int64 `json:"genres"`
	Directors        int64 `json:"directors"`
	Favorites        int64 `json:"favorites"`
	AuthorizedEmails int64 `json:"authorizedEmails"`
	OpenUploads      int64 `json:"openUploads"`
}

type GenreCount struct {
	GenreID   uuid.UUID `json:"genreID" gorm:"column:genre_id"`
	Name      string    `json:"name" gorm:"column:name"`
	Movies    int64     `json:"movies" gorm:"column:movie_count"`
	Favorites int64     `json:"favorites" gorm:"column:favorite_count"`
}

type UserCount struct {
	UserID      uuid.UUID `json:"userID" gorm:"column:user_id"`
	Email       string    `json:"email" gorm:"column:email"`
	DisplayName string    `json:"displayName" gorm:"column:display_name"`
	Favorites   int64     `json:"favorites" gorm:"column:favorite_count"`
}

type UserStats struct {
	UserID          uuid.UUID         `json:"userID"`
	MemberSince     time.Time         `json:"memberSince"`
	Favorites       int64             `json:"favorites"`
	TopGenres       []GenreCount      `json:"topGenres"`
	RecentFavorites []models.Favorite `json:"recentFavorites"`
}

func (s *AnalyticsService) AdminStats(ctx context.Context) (*AdminStats, error) {
	db := s.DB.WithContext(ctx)
	stats := &AdminStats{}

	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{db.Model(&models.User{}), &stats.Users},
		{db.Model(&models.User{}).Where("role = ?", models.RoleAdmin), &stats.Admins},
		{db.Model(&models.Movie{}), &stats.Movies},
		{db.Model(&models.Movie{}).Where("video_embed_url IS NOT NULL AND video_embed_url <> ''"), &stats.PlayableMovies},
		{db.Model(&models.Genre{}), &stats.Genres},
		{db.Model(&models.Director{}), &stats.Directors},
		{db.Model(&models.Favorite{}), &stats.Favorites},
		{db.Model(&models.AuthorizedEmail{}), &stats.AuthorizedEmails},
		{db.Model(&models.UploadSession{}).Where("status = ?", models.UploadStatusOpen), &stats.OpenUploads},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, dal.Wrap(dal.Internal, "failed to compute statistics", err)
		}
	}
	return stats, nil
}

// TopGenres ranks genres by how often their movies were favorited.
func (s *AnalyticsService) TopGenres(ctx context.Context, limit int) ([]GenreCount, error) {
	return s.genreCounts(ctx, nil, limit)
}

func (s *AnalyticsService) genreCounts(ctx context.Context, userID *uuid.UUID, limit int) ([]GenreCount, error) {
	query := s.DB.WithContext(ctx).
		Table("genres").
		Select("genres.id AS genre_id, genres.name AS name, COUNT(DISTINCT movie_genres.movie_id) AS movie_count, COUNT(favorites.id) AS favorite_count").
		Joins("LEFT JOIN movie_genres ON movie_genres.genre_id = genres.id").
		Joins("LEFT JOIN favorites ON favorites.movie_id = movie_genres.movie_id").
		Group("genres.id, genres.name").
		Order("favorite_count DESC, movie_count DESC, genres.name ASC").
		Limit(clampLimit(limit))
	if userID != nil {
		query = query.Where("favorites.user_id = ?", *userID)
	}

	var rows []GenreCount
	if err := query.Scan(&rows).Error; err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to rank genres", err)
	}
	return rows, nil
}

func (s *AnalyticsService) TopUsers(ctx context.Context, limit int) ([]UserCount, error) {
	var rows []UserCount
	err := s.DB.WithContext(ctx).
		Table("users").
		Select("users.id AS user_id, users.email AS email, users.display_name AS display_name, COUNT(favorites.id) AS favorite_count").
		Joins("LEFT JOIN favorites ON favorites.user_id = users.id").
		Group("users.id, users.email, users.display_name").
		Order("favorite_count DESC, users.email ASC").
		Limit(clampLimit(limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to rank users", err)
	}
	return rows, nil
}

func (s *AnalyticsService) RecentActivity(ctx context.Context, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&logs).Error
	if err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to load recent activity", err)
	}
	return logs, nil
}

func (s *AnalyticsService) UserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	db := s.DB.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dal.New(dal.NotFound, "user not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed to load user", err)
	}

	stats := &UserStats{UserID: user.ID, MemberSince: user.CreatedAt}
	if err := db.Model(&models.Favorite{}).Where("user_id = ?", user.ID).Count(&stats.Favorites).Error; err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to count favorites", err)
	}

	genres, err := s.genreCounts(ctx, &user.ID, 5)
	if err != nil {
		return nil, err
	}
	stats.TopGenres = genres

	if err := db.Preload("Movie").Where("user_id = ?", user.ID).Order("created_at DESC").Limit(5).Find(&stats.RecentFavorites).Error; err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to load favorites", err)
	}
	return stats, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}
