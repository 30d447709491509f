package handlers

import (
	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/upload"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Version is the server version, injected at build time:
//
//	go build -ldflags "-X github.com/cinestream/server/internal/handlers.Version=1.2.3"
var Version = "dev"

const apiVersion = "v1"

// ClientHints are the chunking and retry settings uploaders should use when
// the user has not chosen their own. The server does not enforce them.
type ClientHints struct {
	ChunkSize     int64 `json:"chunkSize"`
	RetryAttempts int   `json:"retryAttempts"`
	RetryDelayMs  int64 `json:"retryDelayMs"`
}

func HintsFrom(cfg config.UploadConfig) ClientHints {
	return ClientHints{
		ChunkSize:     int64(cfg.ChunkSizeMB) * 1024 * 1024,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelayMs:  cfg.RetryDelay.Milliseconds(),
	}
}

type uploadLimits struct {
	MaxFileSize      int64        `json:"maxFileSize"`
	AllowedMimeTypes []string     `json:"allowedMimeTypes"`
	Recommended      *ClientHints `json:"recommended,omitempty"`
}

type versionResponse struct {
	Version    string       `json:"version"`
	APIVersion string       `json:"apiVersion"`
	Upload     uploadLimits `json:"upload"`
}

// VersionHandler reports the build and the upload policy so clients can
// reject files before opening a session.
type VersionHandler struct {
	Coordinator *upload.Coordinator
	Hints       ClientHints
}

func NewVersionHandler(coordinator *upload.Coordinator, hints ClientHints) *VersionHandler {
	return &VersionHandler{Coordinator: coordinator, Hints: hints}
}

func (h *VersionHandler) Get(c *fiber.Ctx) error {
	resp := versionResponse{Version: Version, APIVersion: apiVersion}
	if h.Coordinator != nil {
		policy := h.Coordinator.Policy()
		resp.Upload = uploadLimits{
			MaxFileSize:      policy.MaxFileSize,
			AllowedMimeTypes: policy.AllowedMimeTypes,
		}
		if h.Hints.ChunkSize > 0 {
			hints := h.Hints
			resp.Upload.Recommended = &hints
		}
	}
	return utils.Success(c, fiber.StatusOK, resp)
}
