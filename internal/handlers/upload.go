package handlers

import (
	"strconv"
	"strings"

	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/services"
	"github.com/cinestream/server/internal/upload"
	"github.com/cinestream/server/pkg/logger"
	"github.com/cinestream/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	headerUploadID     = "X-Upload-Id"
	headerResumableURI = "X-Resumable-Uri"
	headerChunkStart   = "X-Chunk-Start"
	headerChunkEnd     = "X-Chunk-End"
	headerFileSize     = "X-File-Size"
)

// UploadHandler exposes the resumable upload coordinator. All routes are
// admin only.
type UploadHandler struct {
	Coordinator *upload.Coordinator
	Verifier    *dal.Verifier
	Audit       *services.AuditService
}

func NewUploadHandler(coordinator *upload.Coordinator, verifier *dal.Verifier, audit *services.AuditService) *UploadHandler {
	return &UploadHandler{Coordinator: coordinator, Verifier: verifier, Audit: audit}
}

func (h *UploadHandler) Init(c *fiber.Ctx) error {
	user, err := h.Verifier.VerifyAdmin(c)
	if err != nil {
		return dal.Respond(c, err, "upload_init")
	}

	var req upload.InitRequest
	if ok, resp := bindJSON(c, &req); !ok {
		return resp
	}

	result, err := h.Coordinator.Init(c.UserContext(), user.ID, req)
	if err != nil {
		return dal.Respond(c, err, "upload_init")
	}

	audit(c, h.Audit, user, "upload.init", "upload", nil, map[string]interface{}{
		"upload_id": result.UploadID,
		"file_name": req.FileName,
		"file_size": req.FileSize,
		"mime_type": req.MimeType,
	})

	return utils.Success(c, fiber.StatusOK, result)
}

func (h *UploadHandler) Chunk(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "chunk body is empty")
	}

	in, err := parseChunkHeaders(c)
	if err != nil {
		return dal.Respond(c, err, "upload_chunk")
	}
	in.Body = body

	user, err := h.Verifier.VerifyAdmin(c)
	if err != nil {
		return dal.Respond(c, err, "upload_chunk")
	}

	outcome, err := h.Coordinator.Chunk(c.UserContext(), in)
	if err != nil {
		logger.WarnWithUser(user.ID.String(), "upload_chunk_rejected", map[string]interface{}{
			"upload_id":   in.UploadID,
			"chunk_start": in.ChunkStart,
			"chunk_size":  len(body),
			"error":       err.Error(),
		})
		return dal.Respond(c, err, "upload_chunk")
	}

	if !outcome.Complete {
		return utils.Message(c, fiber.StatusOK, "chunk uploaded", fiber.Map{
			"uploadId":   outcome.UploadID,
			"nextOffset": outcome.NextOffset,
		})
	}

	if !outcome.Replayed {
		audit(c, h.Audit, user, "upload.complete", "upload", nil, map[string]interface{}{
			"upload_id": outcome.UploadID,
			"file_id":   outcome.File.FileID,
			"file_size": in.FileSize,
		})
	}
	return utils.Success(c, fiber.StatusOK, outcome.File)
}

func (h *UploadHandler) Status(c *fiber.Ctx) error {
	if _, err := h.Verifier.VerifyAdmin(c); err != nil {
		return dal.Respond(c, err, "upload_status")
	}

	status, err := h.Coordinator.Status(c.UserContext(), c.Params("uploadId"))
	if err != nil {
		return dal.Respond(c, err, "upload_status")
	}
	return utils.Success(c, fiber.StatusOK, status)
}

// parseChunkHeaders reads the chunk coordinates. Every header is required and
// the numeric ones must be integers.
func parseChunkHeaders(c *fiber.Ctx) (upload.ChunkInput, error) {
	var in upload.ChunkInput

	in.UploadID = strings.TrimSpace(c.Get(headerUploadID))
	in.ResumableURI = strings.TrimSpace(c.Get(headerResumableURI))
	if in.UploadID == "" || in.ResumableURI == "" {
		return in, dal.Newf(dal.BadRequest, "%s and %s headers are required", headerUploadID, headerResumableURI)
	}

	numbers := []struct {
		header string
		dst    *int64
	}{
		{headerChunkStart, &in.ChunkStart},
		{headerChunkEnd, &in.ChunkEnd},
		{headerFileSize, &in.FileSize},
	}
	for _, n := range numbers {
		raw := strings.TrimSpace(c.Get(n.header))
		if raw == "" {
			return in, dal.Newf(dal.BadRequest, "%s header is required", n.header)
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return in, dal.Newf(dal.BadRequest, "%s header must be an integer", n.header)
		}
		*n.dst = parsed
	}
	return in, nil
}
