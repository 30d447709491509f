package models

import (
	"time"

	"github.com/google/uuid"
)

type UploadStatus string

const (
	UploadStatusOpen      UploadStatus = "open"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusExpired   UploadStatus = "expired"
)

// UploadSession is the database ledger row for one resumable upload.
// NextOffset is the first byte the provider has not confirmed yet; LastChunk is
// the start of the most recently accepted chunk.
type UploadSession struct {
	UploadID     string       `json:"uploadId" gorm:"column:upload_id;type:varchar(36);primaryKey"`
	ResumableURI string       `json:"-" gorm:"column:resumable_uri;type:text;not null"`
	FileName     string       `json:"fileName" gorm:"type:varchar(255);not null"`
	FileSize     int64        `json:"fileSize" gorm:"not null"`
	MimeType     string       `json:"mimeType" gorm:"type:varchar(255);not null"`
	NextOffset   int64        `json:"nextOffset" gorm:"not null;default:0"`
	LastChunk    int64        `json:"-" gorm:"column:last_chunk_start;not null;default:0"`
	Status       UploadStatus `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`
	CreatedByID  uuid.UUID    `json:"createdByID" gorm:"type:uuid;not null;index"`
	FileID       *string      `json:"fileId,omitempty" gorm:"type:varchar(255)"`
	Result       string       `json:"-" gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time    `json:"createdAt" gorm:"not null;index"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (UploadSession) TableName() string {
	return "upload_sessions"
}
