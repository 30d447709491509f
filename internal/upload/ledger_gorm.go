package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cinestream/server/internal/models"
	"gorm.io/gorm"
)

// GormLedger keeps sessions in the upload_sessions table.
type GormLedger struct {
	DB *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{DB: db}
}

func (l *GormLedger) Create(ctx context.Context, session *Session) error {
	row := models.UploadSession{
		UploadID:     session.UploadID,
		ResumableURI: session.ResumableURI,
		FileName:     session.FileName,
		FileSize:     session.FileSize,
		MimeType:     session.MimeType,
		NextOffset:   session.NextOffset,
		Status:       models.UploadStatusOpen,
		CreatedByID:  session.CreatedBy,
	}
	if err := l.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create upload session: %w", err)
	}
	session.Status = row.Status
	session.CreatedAt = row.CreatedAt
	session.UpdatedAt = row.UpdatedAt
	return nil
}

func (l *GormLedger) Get(ctx context.Context, uploadID string) (*Session, error) {
	var row models.UploadSession
	err := l.DB.WithContext(ctx).First(&row, "upload_id = ?", uploadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load upload session: %w", err)
	}
	return sessionFromRow(&row)
}

func (l *GormLedger) Advance(ctx context.Context, uploadID string, expected, chunkStart, next int64) error {
	return l.casUpdate(ctx, uploadID, expected, map[string]interface{}{
		"next_offset":      next,
		"last_chunk_start": chunkStart,
		"updated_at":       time.Now().UTC(),
	})
}

func (l *GormLedger) Complete(ctx context.Context, uploadID string, expected, chunkStart int64, file *FileMetadata) error {
	encoded, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}

	var fileID *string
	if file != nil {
		fileID = &file.FileID
	}

	updates := map[string]interface{}{
		"status":           models.UploadStatusCompleted,
		"last_chunk_start": chunkStart,
		"file_id":          fileID,
		"result":           string(encoded),
		"next_offset":      gorm.Expr("file_size"),
		"updated_at":       time.Now().UTC(),
	}
	return l.casUpdate(ctx, uploadID, expected, updates)
}

func (l *GormLedger) casUpdate(ctx context.Context, uploadID string, expected int64, updates map[string]interface{}) error {
	result := l.DB.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("upload_id = ? AND next_offset = ? AND status = ?", uploadID, expected, models.UploadStatusOpen).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update upload session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := l.DB.WithContext(ctx).Model(&models.UploadSession{}).Where("upload_id = ?", uploadID).Count(&count).Error; err != nil {
			return fmt.Errorf("check upload session: %w", err)
		}
		if count == 0 {
			return ErrSessionNotFound
		}
		return ErrOffsetConflict
	}
	return nil
}

func (l *GormLedger) ExpireOpenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := l.DB.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("status = ? AND created_at < ?", models.UploadStatusOpen, cutoff).
		Updates(map[string]interface{}{
			"status":     models.UploadStatusExpired,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("expire upload sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func sessionFromRow(row *models.UploadSession) (*Session, error) {
	session := &Session{
		UploadID:       row.UploadID,
		ResumableURI:   row.ResumableURI,
		FileName:       row.FileName,
		FileSize:       row.FileSize,
		MimeType:       row.MimeType,
		NextOffset:     row.NextOffset,
		LastChunkStart: row.LastChunk,
		Status:         row.Status,
		CreatedBy:      row.CreatedByID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.Result != "" {
		var file FileMetadata
		if err := json.Unmarshal([]byte(row.Result), &file); err != nil {
			return nil, fmt.Errorf("decode file metadata: %w", err)
		}
		session.File = &file
	}
	return session, nil
}
