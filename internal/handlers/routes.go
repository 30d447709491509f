package handlers

import (
	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/middleware"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/internal/upload"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Dependencies struct {
	DB          *gorm.DB
	Coordinator *upload.Coordinator
	Auth        *services.AuthService
	Analytics   *services.AnalyticsService
	Audit       *services.AuditService
	Posters     PosterStore
	UploadHints ClientHints
	FrontendURL string
}

// RegisterRoutes mounts the /api tree. Every route except version, sign-in and
// watch link redemption requires a session; handlers then apply the permission gate.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	verifier := dal.NewVerifier(deps.DB)
	authMiddleware := middleware.NewAuthMiddleware(deps.DB)

	authHandler := NewAuthHandler(deps.Auth, verifier, deps.Audit, deps.FrontendURL)
	moviesHandler := NewMoviesHandler(deps.DB, verifier, deps.Audit, deps.Posters)
	watchHandler := NewWatchHandler(deps.DB)
	genresHandler := NewGenresHandler(deps.DB, verifier, deps.Audit)
	directorsHandler := NewDirectorsHandler(deps.DB, verifier, deps.Audit)
	favoritesHandler := NewFavoritesHandler(deps.DB, verifier)
	usersHandler := NewUsersHandler(deps.DB, verifier, deps.Audit)
	emailsHandler := NewAuthorizedEmailsHandler(deps.DB, verifier, deps.Audit)
	uploadHandler := NewUploadHandler(deps.Coordinator, verifier, deps.Audit)
	analyticsHandler := NewAnalyticsHandler(deps.Analytics, verifier)
	apiTokenHandler := NewAPITokenHandler(deps.DB, verifier, deps.Audit)
	versionHandler := NewVersionHandler(deps.Coordinator, deps.UploadHints)

	api := app.Group("/api")
	api.Get("/version", versionHandler.Get)

	authRoutes := api.Group("/auth")
	authRoutes.Get("/google", authHandler.GoogleLogin)
	authRoutes.Get("/google/callback", authHandler.GoogleCallback)
	authRoutes.Get("/me", authMiddleware.RequireSession, authHandler.Me)

	tokenRoutes := api.Group("/auth/tokens", authMiddleware.RequireSession)
	tokenRoutes.Post("/", apiTokenHandler.Create)
	tokenRoutes.Get("/", apiTokenHandler.List)
	tokenRoutes.Delete("/:id", apiTokenHandler.Revoke)

	api.Get("/watch/:token", watchHandler.Redirect)

	movieRoutes := api.Group("/movies", authMiddleware.RequireSession)
	movieRoutes.Get("/", moviesHandler.List)
	movieRoutes.Post("/", moviesHandler.Create)
	movieRoutes.Get("/:id/watch", moviesHandler.WatchLink)
	movieRoutes.Post("/:id/poster", moviesHandler.UploadPoster)
	movieRoutes.Get("/:id", moviesHandler.Get)
	movieRoutes.Put("/:id", moviesHandler.Update)
	movieRoutes.Delete("/:id", moviesHandler.Delete)

	genreRoutes := api.Group("/genres", authMiddleware.RequireSession)
	genreRoutes.Get("/", genresHandler.List)
	genreRoutes.Post("/", genresHandler.Create)
	genreRoutes.Get("/:id", genresHandler.Get)
	genreRoutes.Put("/:id", genresHandler.Update)
	genreRoutes.Delete("/:id", genresHandler.Delete)

	directorRoutes := api.Group("/directors", authMiddleware.RequireSession)
	directorRoutes.Get("/", directorsHandler.List)
	directorRoutes.Post("/", directorsHandler.Create)
	directorRoutes.Get("/:id", directorsHandler.Get)
	directorRoutes.Put("/:id", directorsHandler.Update)
	directorRoutes.Delete("/:id", directorsHandler.Delete)

	favoriteRoutes := api.Group("/favorites", authMiddleware.RequireSession)
	favoriteRoutes.Get("/", favoritesHandler.List)
	favoriteRoutes.Post("/:movieId", favoritesHandler.Add)
	favoriteRoutes.Delete("/:movieId", favoritesHandler.Remove)

	userRoutes := api.Group("/users", authMiddleware.RequireSession)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Delete("/:id", usersHandler.Delete)

	emailRoutes := api.Group("/authorized-emails", authMiddleware.RequireSession)
	emailRoutes.Get("/", emailsHandler.List)
	emailRoutes.Post("/", emailsHandler.Create)
	emailRoutes.Delete("/:id", emailsHandler.Delete)

	uploadRoutes := api.Group("/upload/google-drive", authMiddleware.RequireSession)
	uploadRoutes.Put("/init", uploadHandler.Init)
	uploadRoutes.Put("/chunk", uploadHandler.Chunk)
	uploadRoutes.Get("/:uploadId", uploadHandler.Status)

	analyticsRoutes := api.Group("/analytics", authMiddleware.RequireSession)
	analyticsRoutes.Get("/admin-stats", analyticsHandler.AdminStats)
	analyticsRoutes.Get("/top-genres", analyticsHandler.TopGenres)
	analyticsRoutes.Get("/top-users", analyticsHandler.TopUsers)
	analyticsRoutes.Get("/recent-activity", analyticsHandler.RecentActivity)
	analyticsRoutes.Get("/user-stats/:userId", analyticsHandler.UserStats)
}
