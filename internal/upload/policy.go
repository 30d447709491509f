package upload

import (
	"fmt"
	"strings"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/dal"
)

// Policy bounds what may be uploaded. It is checked before the provider is
// contacted.
type Policy struct {
	MaxFileSize      int64
	AllowedMimeTypes []string
}

func NewPolicy(cfg config.UploadConfig) Policy {
	return Policy{
		MaxFileSize:      cfg.MaxFileSizeBytes(),
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	}
}

func (p Policy) Check(fileName string, fileSize int64, mimeType string) error {
	if strings.TrimSpace(fileName) == "" {
		return dal.New(dal.BadRequest, "fileName is required")
	}
	if fileSize <= 0 {
		return dal.New(dal.BadRequest, "fileSize must be greater than 0")
	}
	if fileSize > p.MaxFileSize {
		return dal.Newf(dal.BadRequest, "file exceeds the maximum size of %d bytes", p.MaxFileSize)
	}
	if !p.Allows(mimeType) {
		return dal.New(dal.BadRequest, fmt.Sprintf("mime type %q is not allowed", mimeType))
	}
	return nil
}

// Allows compares the media type without parameters, case-insensitively.
func (p Policy) Allows(mimeType string) bool {
	mediaType := normalizeMimeType(mimeType)
	if mediaType == "" {
		return false
	}
	for _, allowed := range p.AllowedMimeTypes {
		if normalizeMimeType(allowed) == mediaType {
			return true
		}
	}
	return false
}

func normalizeMimeType(value string) string {
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
