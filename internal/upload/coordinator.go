// Package upload coordinates resumable, chunked uploads to a remote storage
// provider. Sessions are recorded in a ledger so the next expected offset
// survives restarts and is enforced across concurrent chunk calls.
package upload

import (
	"context"
	"errors"
	"time"

	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/metrics"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/google/uuid"
)

type InitRequest struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType" validate:"required"`
}

type InitResult struct {
	UploadID     string `json:"uploadId"`
	ResumableURI string `json:"resumableUri"`
}

// ChunkInput is one chunk as received from the client. ChunkEnd is what the
// client claimed; the byte range actually forwarded is derived from Body.
type ChunkInput struct {
	UploadID     string
	ResumableURI string
	ChunkStart   int64
	ChunkEnd     int64
	FileSize     int64
	Body         []byte
}

type ChunkOutcome struct {
	UploadID   string
	Complete   bool
	NextOffset int64
	File       *FileMetadata
	Replayed   bool
}

type StatusResult struct {
	UploadID   string              `json:"uploadId"`
	FileName   string              `json:"fileName"`
	FileSize   int64               `json:"fileSize"`
	MimeType   string              `json:"mimeType"`
	NextOffset int64               `json:"nextOffset"`
	Status     models.UploadStatus `json:"status"`
	File       *FileMetadata       `json:"file,omitempty"`
}

type Coordinator struct {
	provider   Provider
	ledger     Ledger
	policy     Policy
	sessionTTL time.Duration
	now        func() time.Time
}

func NewCoordinator(provider Provider, ledger Ledger, policy Policy, sessionTTL time.Duration) *Coordinator {
	return &Coordinator{
		provider:   provider,
		ledger:     ledger,
		policy:     policy,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Init checks the policy, opens a provider session and records it with
// offset 0. The provider is never contacted when the policy rejects.
func (c *Coordinator) Init(ctx context.Context, createdBy uuid.UUID, req InitRequest) (*InitResult, error) {
	if err := c.policy.Check(req.FileName, req.FileSize, req.MimeType); err != nil {
		return nil, err
	}

	start := time.Now()
	resumableURI, err := c.provider.OpenSession(ctx, SessionRequest{
		FileName: req.FileName,
		FileSize: req.FileSize,
		MimeType: req.MimeType,
	})
	metrics.RecordProviderCall("open_session", err, time.Since(start))
	if err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to start upload session", err)
	}

	session := &Session{
		UploadID:     uuid.NewString(),
		ResumableURI: resumableURI,
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		MimeType:     req.MimeType,
		NextOffset:   0,
		CreatedBy:    createdBy,
	}
	if err := c.ledger.Create(ctx, session); err != nil {
		return nil, dal.Wrap(dal.Internal, "failed to record upload session", err)
	}
	metrics.UploadSessionsOpened.Inc()

	logger.Info("upload_session_opened", map[string]interface{}{
		"upload_id":  session.UploadID,
		"file_name":  session.FileName,
		"file_size":  session.FileSize,
		"mime_type":  session.MimeType,
		"created_by": createdBy.String(),
	})

	return &InitResult{UploadID: session.UploadID, ResumableURI: resumableURI}, nil
}

// Chunk forwards one chunk. The chunk must start exactly at the session's
// next offset; the ledger update is a compare-and-set on that offset so only
// one of two racing chunks wins.
func (c *Coordinator) Chunk(ctx context.Context, in ChunkInput) (*ChunkOutcome, error) {
	if len(in.Body) == 0 {
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return nil, dal.New(dal.BadRequest, "chunk body is empty")
	}
	if in.ChunkStart < 0 {
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return nil, dal.New(dal.BadRequest, "chunk start must not be negative")
	}
	actualEnd := in.ChunkStart + int64(len(in.Body)) - 1

	session, err := c.ledger.Get(ctx, in.UploadID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			metrics.UploadChunks.WithLabelValues("rejected").Inc()
			return nil, dal.New(dal.NotFound, "upload session not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed to load upload session", err)
	}

	if err := c.checkChunk(session, in, actualEnd); err != nil {
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if session.Status == models.UploadStatusCompleted {
		metrics.UploadChunks.WithLabelValues("replayed").Inc()
		return &ChunkOutcome{
			UploadID:   session.UploadID,
			Complete:   true,
			NextOffset: session.FileSize,
			File:       session.File,
			Replayed:   true,
		}, nil
	}

	start := time.Now()
	result, err := c.provider.PutChunk(ctx, ChunkRequest{
		ResumableURI: session.ResumableURI,
		Start:        in.ChunkStart,
		End:          actualEnd,
		Total:        session.FileSize,
		Body:         in.Body,
	})
	metrics.RecordProviderCall("put_chunk", err, time.Since(start))
	if err != nil {
		metrics.UploadChunks.WithLabelValues("failed").Inc()
		return nil, dal.Wrap(dal.Internal, "storage provider rejected the chunk", err)
	}
	metrics.UploadBytes.Add(float64(len(in.Body)))

	if result.Complete {
		return c.complete(ctx, session, in, result)
	}

	next := result.NextOffset
	if next < session.NextOffset || next > actualEnd+1 {
		metrics.UploadChunks.WithLabelValues("failed").Inc()
		return nil, dal.Newf(dal.Internal, "storage provider confirmed offset %d outside of [%d, %d]", next, session.NextOffset, actualEnd+1)
	}
	if err := c.ledger.Advance(ctx, session.UploadID, session.NextOffset, in.ChunkStart, next); err != nil {
		return nil, ledgerError(err)
	}
	metrics.UploadChunks.WithLabelValues("accepted").Inc()

	return &ChunkOutcome{UploadID: session.UploadID, NextOffset: next}, nil
}

func (c *Coordinator) checkChunk(session *Session, in ChunkInput, actualEnd int64) error {
	if in.ResumableURI != session.ResumableURI {
		return dal.New(dal.BadRequest, "resumable URI does not match upload session")
	}
	if in.FileSize != session.FileSize {
		return dal.Newf(dal.BadRequest, "file size %d does not match upload session size %d", in.FileSize, session.FileSize)
	}
	if actualEnd >= session.FileSize {
		return dal.New(dal.BadRequest, "chunk extends past the end of the file")
	}

	switch session.Status {
	case models.UploadStatusExpired:
		return dal.New(dal.BadRequest, "upload session has expired")
	case models.UploadStatusCompleted:
		if session.File != nil && in.ChunkStart == session.LastChunkStart && actualEnd == session.FileSize-1 {
			return nil
		}
		return dal.New(dal.BadRequest, "upload already completed")
	}

	if c.expired(session) {
		return dal.New(dal.BadRequest, "upload session has expired")
	}
	if in.ChunkStart != session.NextOffset {
		return dal.Newf(dal.BadRequest, "chunk starts at byte %d, expected %d", in.ChunkStart, session.NextOffset)
	}
	return nil
}

func (c *Coordinator) complete(ctx context.Context, session *Session, in ChunkInput, result *ChunkResult) (*ChunkOutcome, error) {
	if result.File == nil {
		metrics.UploadChunks.WithLabelValues("failed").Inc()
		return nil, dal.New(dal.Internal, "storage provider returned no file metadata")
	}

	if err := c.ledger.Complete(ctx, session.UploadID, session.NextOffset, in.ChunkStart, result.File); err != nil {
		return nil, ledgerError(err)
	}
	metrics.UploadChunks.WithLabelValues("completed").Inc()

	logger.Info("upload_session_completed", map[string]interface{}{
		"upload_id": session.UploadID,
		"file_id":   result.File.FileID,
		"file_size": session.FileSize,
	})

	return &ChunkOutcome{
		UploadID:   session.UploadID,
		Complete:   true,
		NextOffset: session.FileSize,
		File:       result.File,
	}, nil
}

func (c *Coordinator) Status(ctx context.Context, uploadID string) (*StatusResult, error) {
	session, err := c.ledger.Get(ctx, uploadID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, dal.New(dal.NotFound, "upload session not found")
		}
		return nil, dal.Wrap(dal.Internal, "failed to load upload session", err)
	}

	status := session.Status
	if status == models.UploadStatusOpen && c.expired(session) {
		status = models.UploadStatusExpired
	}

	return &StatusResult{
		UploadID:   session.UploadID,
		FileName:   session.FileName,
		FileSize:   session.FileSize,
		MimeType:   session.MimeType,
		NextOffset: session.NextOffset,
		Status:     status,
		File:       session.File,
	}, nil
}

// ExpireStale marks open sessions older than the session TTL as expired.
func (c *Coordinator) ExpireStale(ctx context.Context) (int64, error) {
	if c.sessionTTL <= 0 {
		return 0, nil
	}
	count, err := c.ledger.ExpireOpenBefore(ctx, c.now().Add(-c.sessionTTL))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.UploadSessionsExpired.Add(float64(count))
		logger.Info("upload_sessions_expired", map[string]interface{}{
			"count": count,
		})
	}
	return count, nil
}

// StartSweeper runs ExpireStale every interval until ctx is cancelled.
func (c *Coordinator) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || c.sessionTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.ExpireStale(ctx); err != nil {
					logger.Error("upload_sweep_failed", err, nil)
				}
			}
		}
	}()
}

func (c *Coordinator) expired(session *Session) bool {
	return c.sessionTTL > 0 && !session.CreatedAt.IsZero() && c.now().Sub(session.CreatedAt) > c.sessionTTL
}

func ledgerError(err error) error {
	switch {
	case errors.Is(err, ErrOffsetConflict):
		metrics.UploadChunks.WithLabelValues("rejected").Inc()
		return dal.New(dal.BadRequest, "upload session changed concurrently, query its status and resume")
	case errors.Is(err, ErrSessionNotFound):
		return dal.New(dal.NotFound, "upload session not found")
	default:
		return dal.Wrap(dal.Internal, "failed to update upload session", err)
	}
}
