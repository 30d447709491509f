package handlers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cinestream/server/internal/authz"
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/internal/storage"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/cinestream/server/pkg/watchtoken"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxPosterSize     = 10 * 1024 * 1024
	posterURLLifetime = time.Hour
)

type MoviesHandler struct {
	DB          *gorm.DB
	Verifier    *dal.Verifier
	Audit       *services.AuditService
	Posters     PosterStore
	WatchExpiry time.Duration
}

func NewMoviesHandler(db *gorm.DB, verifier *dal.Verifier, audit *services.AuditService, posters PosterStore) *MoviesHandler {
	return &MoviesHandler{
		DB:          db,
		Verifier:    verifier,
		Audit:       audit,
		Posters:     posters,
		WatchExpiry: watchtoken.DefaultExpiry,
	}
}

type createMovieRequest struct {
	Title           string   `json:"title" validate:"required,max=255"`
	Description     string   `json:"description" validate:"max=5000"`
	ReleaseYear     int      `json:"releaseYear" validate:"gte=0,lte=3000"`
	DurationMinutes int      `json:"durationMinutes" validate:"gte=0"`
	DirectorID      *string  `json:"directorID" validate:"omitempty,uuid"`
	GenreIDs        []string `json:"genreIDs" validate:"omitempty,dive,uuid"`
	VideoFileID     *string  `json:"videoFileID" validate:"omitempty,max=255"`
}

type updateMovieRequest struct {
	Title           *string  `json:"title" validate:"omitempty,max=255"`
	Description     *string  `json:"description" validate:"omitempty,max=5000"`
	ReleaseYear     *int     `json:"releaseYear" validate:"omitempty,gte=0,lte=3000"`
	DurationMinutes *int     `json:"durationMinutes" validate:"omitempty,gte=0"`
	// An empty directorID clears the director, so it is parsed in Update.
	DirectorID      *string  `json:"directorID"`
	GenreIDs        []string `json:"genreIDs" validate:"omitempty,dive,uuid"`
	VideoFileID     *string  `json:"videoFileID" validate:"omitempty,max=255"`
}

func (h *MoviesHandler) List(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermViewMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_list")
	}

	p := utils.PageFromQuery(c)
	query := h.DB.Model(&models.Movie{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	if raw := strings.TrimSpace(c.Query("genre")); raw != "" {
		genreID, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid genre id")
		}
		query = query.Where("id IN (?)", h.DB.Table("movie_genres").Select("movie_id").Where("genre_id = ?", genreID))
	}
	if raw := strings.TrimSpace(c.Query("director")); raw != "" {
		directorID, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid director id")
		}
		query = query.Where("director_id = ?", directorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting movies")
	}

	var movies []models.Movie
	err = query.Preload("Director").Preload("Genres").Order("created_at DESC").Scopes(p.Scope).Find(&movies).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing movies")
	}

	h.decorate(c, movies, user)
	return utils.Paginated(c, movies, p.Number, p.Size, total)
}

func (h *MoviesHandler) Get(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermViewMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_get")
	}

	movie, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "movie_get")
	}

	movies := []models.Movie{*movie}
	h.decorate(c, movies, user)
	return utils.Success(c, fiber.StatusOK, movies[0])
}

func (h *MoviesHandler) Create(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermCreateMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_create")
	}

	var req createMovieRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	movie := models.Movie{
		Title:           title,
		Description:     strings.TrimSpace(req.Description),
		ReleaseYear:     req.ReleaseYear,
		DurationMinutes: req.DurationMinutes,
	}

	if req.DirectorID != nil && *req.DirectorID != "" {
		director, err := h.findDirector(*req.DirectorID)
		if err != nil {
			return dal.Respond(c, err, "movie_create")
		}
		movie.DirectorID = &director.ID
	}

	genres, err := h.findGenres(req.GenreIDs)
	if err != nil {
		return dal.Respond(c, err, "movie_create")
	}
	movie.Genres = genres

	setVideo(&movie, req.VideoFileID)

	if err := h.DB.Create(&movie).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating movie")
	}

	logger.InfoWithUser(user.ID.String(), "movie_created", map[string]interface{}{
		"movie_id": movie.ID.String(),
		"title":    movie.Title,
	})
	audit(c, h.Audit, user, "movie.create", "movie", &movie.ID, map[string]interface{}{
		"title": movie.Title,
	})

	created, err := h.load(movie.ID.String())
	if err != nil {
		return dal.Respond(c, err, "movie_create")
	}
	movies := []models.Movie{*created}
	h.decorate(c, movies, user)
	return utils.Success(c, fiber.StatusCreated, movies[0])
}

func (h *MoviesHandler) Update(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermUpdateMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_update")
	}

	movie, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "movie_update")
	}

	var req updateMovieRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		value := strings.TrimSpace(*req.Title)
		if value == "" {
			return utils.Error(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		updates["title"] = value
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.ReleaseYear != nil {
		updates["release_year"] = *req.ReleaseYear
	}
	if req.DurationMinutes != nil {
		updates["duration_minutes"] = *req.DurationMinutes
	}
	if req.DirectorID != nil {
		if *req.DirectorID == "" {
			updates["director_id"] = nil
		} else {
			director, err := h.findDirector(*req.DirectorID)
			if err != nil {
				return dal.Respond(c, err, "movie_update")
			}
			updates["director_id"] = director.ID
		}
	}
	if req.VideoFileID != nil {
		var video models.Movie
		setVideo(&video, req.VideoFileID)
		updates["video_file_id"] = video.VideoFileID
		updates["video_embed_url"] = video.VideoEmbedURL
	}

	var genres []models.Genre
	if req.GenreIDs != nil {
		genres, err = h.findGenres(req.GenreIDs)
		if err != nil {
			return dal.Respond(c, err, "movie_update")
		}
	}

	if len(updates) == 0 && req.GenreIDs == nil {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Movie{}).Where("id = ?", movie.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.GenreIDs != nil {
			if len(genres) == 0 {
				return tx.Model(movie).Association("Genres").Clear()
			}
			return tx.Model(movie).Association("Genres").Replace(genres)
		}
		return nil
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating movie")
	}

	audit(c, h.Audit, user, "movie.update", "movie", &movie.ID, map[string]interface{}{
		"fields": len(updates),
		"genres": req.GenreIDs != nil,
	})

	updated, err := h.load(movie.ID.String())
	if err != nil {
		return dal.Respond(c, err, "movie_update")
	}
	movies := []models.Movie{*updated}
	h.decorate(c, movies, user)
	return utils.Success(c, fiber.StatusOK, movies[0])
}

func (h *MoviesHandler) Delete(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermDeleteMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_delete")
	}

	movie, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "movie_delete")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(movie).Association("Genres").Clear(); err != nil {
			return err
		}
		if err := tx.Where("movie_id = ?", movie.ID).Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Movie{}, "id = ?", movie.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting movie")
	}

	if movie.PosterPath != nil && h.Posters != nil {
		if err := h.Posters.Delete(c.UserContext(), *movie.PosterPath); err != nil {
			logger.Warn("poster_delete_failed", map[string]interface{}{
				"movie_id": movie.ID.String(),
				"error":    err.Error(),
			})
		}
	}

	logger.InfoWithUser(user.ID.String(), "movie_deleted", map[string]interface{}{
		"movie_id": movie.ID.String(),
		"title":    movie.Title,
	})
	audit(c, h.Audit, user, "movie.delete", "movie", &movie.ID, map[string]interface{}{
		"title": movie.Title,
	})

	return utils.Message(c, fiber.StatusOK, "movie deleted", nil)
}

func (h *MoviesHandler) UploadPoster(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermUpdateMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_poster")
	}
	if h.Posters == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "poster storage is not configured")
	}

	movie, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "movie_poster")
	}

	fileHeader, err := c.FormFile("poster")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "poster is required")
	}
	if fileHeader.Size > maxPosterSize {
		return utils.Error(c, fiber.StatusBadRequest, "poster must be 10MB or smaller")
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return utils.Error(c, fiber.StatusBadRequest, "poster must be an image")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded poster")
	}
	defer stream.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	objectName := fmt.Sprintf("movies/%s/%s%s", movie.ID.String(), uuid.NewString(), ext)
	if err := h.Posters.Upload(c.UserContext(), objectName, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading poster")
	}

	if err := h.DB.Model(&models.Movie{}).Where("id = ?", movie.ID).Update("poster_path", objectName).Error; err != nil {
		_ = h.Posters.Delete(c.UserContext(), objectName)
		return utils.Error(c, fiber.StatusInternalServerError, "failed saving poster")
	}
	if movie.PosterPath != nil {
		_ = h.Posters.Delete(c.UserContext(), *movie.PosterPath)
	}

	audit(c, h.Audit, user, "movie.poster", "movie", &movie.ID, map[string]interface{}{
		"object":    objectName,
		"file_size": fileHeader.Size,
	})

	movie.PosterPath = &objectName
	movies := []models.Movie{*movie}
	h.decorate(c, movies, user)
	return utils.Success(c, fiber.StatusOK, movies[0])
}

// WatchLink issues a short-lived signed link resolving to the movie's player.
func (h *MoviesHandler) WatchLink(c *fiber.Ctx) error {
	user, err := h.Verifier.RequirePermission(c, authz.PermViewMovie)
	if err != nil {
		return dal.Respond(c, err, "movie_watch")
	}

	movie, err := h.load(c.Params("id"))
	if err != nil {
		return dal.Respond(c, err, "movie_watch")
	}
	if embedURL(movie) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "movie has no playable video")
	}

	token, err := watchtoken.Generate(movie.ID.String(), user.ID.String(), h.WatchExpiry)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating watch link")
	}

	logger.InfoWithUser(user.ID.String(), "watch_link_issued", map[string]interface{}{
		"movie_id": movie.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url":       "/api/watch/" + token,
		"expiresAt": time.Now().Add(h.WatchExpiry).UTC(),
	})
}

func (h *MoviesHandler) load(rawID string) (*models.Movie, error) {
	id, err := parseUUID(rawID)
	if err != nil {
		return nil, dal.New(dal.BadRequest, "invalid movie id")
	}
	var movie models.Movie
	if err := h.DB.Preload("Director").Preload("Genres").First(&movie, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dal.New(dal.NotFound, "movie not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed fetching movie", err)
	}
	return &movie, nil
}

func (h *MoviesHandler) findDirector(rawID string) (*models.Director, error) {
	id, err := parseUUID(rawID)
	if err != nil {
		return nil, dal.New(dal.BadRequest, "invalid director id")
	}
	var director models.Director
	if err := h.DB.First(&director, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dal.New(dal.NotFound, "director not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed fetching director", err)
	}
	return &director, nil
}

func (h *MoviesHandler) findGenres(rawIDs []string) ([]models.Genre, error) {
	if len(rawIDs) == 0 {
		return []models.Genre{}, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(rawIDs))
	ids := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := parseUUID(raw)
		if err != nil {
			return nil, dal.New(dal.BadRequest, "invalid genre id")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	var genres []models.Genre
	if err := h.DB.Where("id IN ?", ids).Find(&genres).Error; err != nil {
		return nil, dal.Wrap(dal.Internal, "failed fetching genres", err)
	}
	if len(genres) != len(ids) {
		return nil, dal.New(dal.BadRequest, "one or more genres do not exist")
	}
	return genres, nil
}

// decorate fills the computed fields of movies for the viewing user.
func (h *MoviesHandler) decorate(c *fiber.Ctx, movies []models.Movie, user *models.User) {
	if len(movies) == 0 {
		return
	}

	favorited := map[uuid.UUID]struct{}{}
	if user != nil {
		ids := make([]uuid.UUID, 0, len(movies))
		for _, m := range movies {
			ids = append(ids, m.ID)
		}
		var favIDs []uuid.UUID
		if err := h.DB.Model(&models.Favorite{}).Where("user_id = ? AND movie_id IN ?", user.ID, ids).Pluck("movie_id", &favIDs).Error; err == nil {
			for _, id := range favIDs {
				favorited[id] = struct{}{}
			}
		}
	}

	for i := range movies {
		m := &movies[i]
		m.Playable = embedURL(m) != ""
		_, m.Favorited = favorited[m.ID]
		if m.PosterPath != nil && h.Posters != nil {
			url, err := h.Posters.PresignedGetURL(c.UserContext(), *m.PosterPath, posterURLLifetime)
			if err != nil {
				logger.Warn("poster_url_failed", map[string]interface{}{
					"movie_id": m.ID.String(),
					"error":    err.Error(),
				})
				continue
			}
			m.PosterURL = url
		}
	}
}

func setVideo(movie *models.Movie, fileID *string) {
	if fileID == nil {
		return
	}
	trimmed := strings.TrimSpace(*fileID)
	if trimmed == "" {
		movie.VideoFileID = nil
		movie.VideoEmbedURL = nil
		return
	}
	link := storage.EmbedLink(trimmed)
	movie.VideoFileID = &trimmed
	movie.VideoEmbedURL = &link
}

func embedURL(movie *models.Movie) string {
	if movie.VideoEmbedURL != nil && *movie.VideoEmbedURL != "" {
		return *movie.VideoEmbedURL
	}
	if movie.VideoFileID != nil && *movie.VideoFileID != "" {
		return storage.EmbedLink(*movie.VideoFileID)
	}
	return ""
}
