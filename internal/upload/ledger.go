package upload

import (
	"context"
	"errors"
	"time"

	"github.com/cinestream/server/internal/models"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("upload session not found")
	// ErrOffsetConflict means another writer moved the session since it was read.
	ErrOffsetConflict = errors.New("upload session offset changed")
)

type Session struct {
	UploadID       string
	ResumableURI   string
	FileName       string
	FileSize       int64
	MimeType       string
	NextOffset     int64
	LastChunkStart int64
	Status         models.UploadStatus
	CreatedBy      uuid.UUID
	File           *FileMetadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ledger persists upload sessions. Advance and Complete are compare-and-set
// on the session's current offset and only apply to open sessions.
type Ledger interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, uploadID string) (*Session, error)
	Advance(ctx context.Context, uploadID string, expected, chunkStart, next int64) error
	Complete(ctx context.Context, uploadID string, expected, chunkStart int64, file *FileMetadata) error
	ExpireOpenBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
