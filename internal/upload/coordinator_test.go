package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cinestream/server/internal/dal"
	"github.com/cinestream/server/internal/models"
	"github.com/cinestream/server/pkg/logger"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeProvider struct {
	mu       sync.Mutex
	opened   int
	openErr  error
	chunks   []ChunkRequest
	chunkErr error
	shortBy  int64
	uri      string
	metadata FileMetadata
}

func (p *fakeProvider) OpenSession(_ context.Context, req SessionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
	if p.openErr != nil {
		return "", p.openErr
	}
	if p.uri == "" {
		p.uri = "https://upload.example.test/session/" + uuid.NewString()
	}
	p.metadata = FileMetadata{
		FileID:    "drive-file-1",
		Name:      req.FileName,
		MimeType:  req.MimeType,
		Size:      req.FileSize,
		EmbedLink: "https://drive.google.com/file/d/drive-file-1/preview",
	}
	return p.uri, nil
}

func (p *fakeProvider) PutChunk(_ context.Context, req ChunkRequest) (*ChunkResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chunkErr != nil {
		return nil, p.chunkErr
	}
	p.chunks = append(p.chunks, req)
	confirmed := req.End + 1 - p.shortBy
	if confirmed == req.Total {
		file := p.metadata
		return &ChunkResult{Complete: true, NextOffset: req.Total, File: &file}, nil
	}
	return &ChunkResult{NextOffset: confirmed}, nil
}

func (p *fakeProvider) chunkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

func setupLedger(t *testing.T) (*GormLedger, *gorm.DB) {
	t.Helper()
	logger.Init("disabled", "json")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.UploadSession{}); err != nil {
		t.Fatalf("failed automigrating: %v", err)
	}
	return NewGormLedger(db), db
}

func newTestCoordinator(t *testing.T, provider *fakeProvider) *Coordinator {
	t.Helper()
	ledger, _ := setupLedger(t)
	policy := Policy{MaxFileSize: 1024, AllowedMimeTypes: []string{"video/mp4"}}
	return NewCoordinator(provider, ledger, policy, time.Hour)
}

func requireDALType(t *testing.T, err error, want dal.ErrorType) *dal.Error {
	t.Helper()
	dalErr, ok := dal.As(err)
	if !ok {
		t.Fatalf("expected %s error, got %v", want, err)
	}
	if dalErr.Type != want {
		t.Fatalf("expected %s, got %s: %s", want, dalErr.Type, dalErr.Message)
	}
	return dalErr
}

func initSession(t *testing.T, c *Coordinator, size int64) *InitResult {
	t.Helper()
	res, err := c.Init(t.Context(), uuid.New(), InitRequest{FileName: "movie.mp4", FileSize: size, MimeType: "video/mp4"})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return res
}

func TestInitRejectsPolicyViolationsWithoutContactingProvider(t *testing.T) {
	tests := []struct {
		name string
		req  InitRequest
	}{
		{"too large", InitRequest{FileName: "big.mp4", FileSize: 1025, MimeType: "video/mp4"}},
		{"zero size", InitRequest{FileName: "empty.mp4", FileSize: 0, MimeType: "video/mp4"}},
		{"negative size", InitRequest{FileName: "neg.mp4", FileSize: -5, MimeType: "video/mp4"}},
		{"disallowed mime", InitRequest{FileName: "clip.mov", FileSize: 10, MimeType: "video/quicktime"}},
		{"empty mime", InitRequest{FileName: "clip.mp4", FileSize: 10}},
		{"missing name", InitRequest{FileName: "  ", FileSize: 10, MimeType: "video/mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			c := newTestCoordinator(t, provider)

			_, err := c.Init(t.Context(), uuid.New(), tt.req)
			requireDALType(t, err, dal.BadRequest)
			if provider.opened != 0 {
				t.Fatalf("provider contacted %d times", provider.opened)
			}
		})
	}
}

func TestInitAcceptsMimeParametersAndCase(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)

	res, err := c.Init(t.Context(), uuid.New(), InitRequest{FileName: "a.mp4", FileSize: 1024, MimeType: "Video/MP4; codecs=avc1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UploadID == "" || res.ResumableURI != provider.uri {
		t.Fatalf("unexpected init result %+v", res)
	}
}

func TestInitProviderFailureIsInternal(t *testing.T) {
	provider := &fakeProvider{openErr: errors.New("drive: 503")}
	c := newTestCoordinator(t, provider)

	_, err := c.Init(t.Context(), uuid.New(), InitRequest{FileName: "a.mp4", FileSize: 10, MimeType: "video/mp4"})
	requireDALType(t, err, dal.Internal)
}

func TestSingleChunkUploadCompletes(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 10)

	out, err := c.Chunk(t.Context(), ChunkInput{
		UploadID:     session.UploadID,
		ResumableURI: session.ResumableURI,
		ChunkStart:   0,
		ChunkEnd:     500,
		FileSize:     10,
		Body:         []byte("0123456789"),
	})
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}
	if !out.Complete || out.File == nil || out.File.FileID != "drive-file-1" {
		t.Fatalf("expected finalized metadata, got %+v", out)
	}
	if got := provider.chunks[0]; got.Start != 0 || got.End != 9 || got.Total != 10 {
		t.Fatalf("expected bytes 0-9/10 forwarded, got %d-%d/%d", got.Start, got.End, got.Total)
	}

	status, err := c.Status(t.Context(), session.UploadID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Status != models.UploadStatusCompleted || status.NextOffset != 10 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestMultiChunkUploadAdvancesOffset(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 12)

	chunk := func(start int64, body string) (*ChunkOutcome, error) {
		return c.Chunk(t.Context(), ChunkInput{
			UploadID:     session.UploadID,
			ResumableURI: session.ResumableURI,
			ChunkStart:   start,
			FileSize:     12,
			Body:         []byte(body),
		})
	}

	out, err := chunk(0, "abcd")
	if err != nil || out.Complete || out.NextOffset != 4 {
		t.Fatalf("first chunk: out=%+v err=%v", out, err)
	}

	_, err = chunk(0, "abcd")
	dalErr := requireDALType(t, err, dal.BadRequest)
	if dalErr.Message != "chunk starts at byte 0, expected 4" {
		t.Fatalf("unexpected message %q", dalErr.Message)
	}

	_, err = chunk(8, "ijkl")
	requireDALType(t, err, dal.BadRequest)

	out, err = chunk(4, "efgh")
	if err != nil || out.NextOffset != 8 {
		t.Fatalf("second chunk: out=%+v err=%v", out, err)
	}

	out, err = chunk(8, "ijkl")
	if err != nil || !out.Complete {
		t.Fatalf("final chunk: out=%+v err=%v", out, err)
	}
	if provider.chunkCount() != 3 {
		t.Fatalf("expected 3 chunks forwarded, got %d", provider.chunkCount())
	}
}

func TestPartialConfirmationResumesFromProviderOffset(t *testing.T) {
	provider := &fakeProvider{shortBy: 2}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 20)

	out, err := c.Chunk(t.Context(), ChunkInput{
		UploadID: session.UploadID, ResumableURI: session.ResumableURI,
		ChunkStart: 0, FileSize: 20, Body: []byte("0123456789"),
	})
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}
	if out.NextOffset != 8 {
		t.Fatalf("expected provider-confirmed offset 8, got %d", out.NextOffset)
	}
}

func TestChunkValidation(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 10)

	tests := []struct {
		name string
		in   ChunkInput
		want dal.ErrorType
	}{
		{"empty body", ChunkInput{UploadID: session.UploadID, ResumableURI: session.ResumableURI, FileSize: 10}, dal.BadRequest},
		{"empty body with garbage ids", ChunkInput{UploadID: "nope", ChunkStart: -3}, dal.BadRequest},
		{"unknown upload", ChunkInput{UploadID: uuid.NewString(), ResumableURI: session.ResumableURI, FileSize: 10, Body: []byte("x")}, dal.NotFound},
		{"uri mismatch", ChunkInput{UploadID: session.UploadID, ResumableURI: "https://evil.test/x", FileSize: 10, Body: []byte("x")}, dal.BadRequest},
		{"file size changed", ChunkInput{UploadID: session.UploadID, ResumableURI: session.ResumableURI, FileSize: 11, Body: []byte("x")}, dal.BadRequest},
		{"past end of file", ChunkInput{UploadID: session.UploadID, ResumableURI: session.ResumableURI, FileSize: 10, Body: []byte("01234567890")}, dal.BadRequest},
		{"negative start", ChunkInput{UploadID: session.UploadID, ResumableURI: session.ResumableURI, ChunkStart: -1, FileSize: 10, Body: []byte("x")}, dal.BadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Chunk(t.Context(), tt.in)
			requireDALType(t, err, tt.want)
		})
	}
	if provider.chunkCount() != 0 {
		t.Fatalf("provider received %d chunks for invalid requests", provider.chunkCount())
	}
}

func TestLateChunkAfterCompletion(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 8)

	send := func(start int64, body string) (*ChunkOutcome, error) {
		return c.Chunk(t.Context(), ChunkInput{
			UploadID: session.UploadID, ResumableURI: session.ResumableURI,
			ChunkStart: start, FileSize: 8, Body: []byte(body),
		})
	}

	if _, err := send(0, "abcd"); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	if _, err := send(4, "efgh"); err != nil {
		t.Fatalf("final chunk: %v", err)
	}

	replay, err := send(4, "efgh")
	if err != nil {
		t.Fatalf("replay of the final chunk should be idempotent: %v", err)
	}
	if !replay.Complete || !replay.Replayed || replay.File == nil || replay.File.FileID != "drive-file-1" {
		t.Fatalf("unexpected replay outcome %+v", replay)
	}
	if provider.chunkCount() != 2 {
		t.Fatalf("replay must not reach the provider, got %d chunks", provider.chunkCount())
	}

	_, err = send(0, "abcd")
	dalErr := requireDALType(t, err, dal.BadRequest)
	if dalErr.Message != "upload already completed" {
		t.Fatalf("unexpected message %q", dalErr.Message)
	}
}

func TestChunkProviderFailureKeepsOffset(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 10)

	provider.chunkErr = errors.New("connection reset")
	_, err := c.Chunk(t.Context(), ChunkInput{
		UploadID: session.UploadID, ResumableURI: session.ResumableURI,
		FileSize: 10, Body: []byte("01234"),
	})
	requireDALType(t, err, dal.Internal)

	status, err := c.Status(t.Context(), session.UploadID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.NextOffset != 0 || status.Status != models.UploadStatusOpen {
		t.Fatalf("failed chunk must not move the session, got %+v", status)
	}
}

func TestExpiredSessionsRejectChunks(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestCoordinator(t, provider)
	session := initSession(t, c, 10)

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	status, err := c.Status(t.Context(), session.UploadID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Status != models.UploadStatusExpired {
		t.Fatalf("expected expired status, got %s", status.Status)
	}

	count, err := c.ExpireStale(t.Context())
	if err != nil || count != 1 {
		t.Fatalf("expected one expired session, got %d (%v)", count, err)
	}

	_, err = c.Chunk(t.Context(), ChunkInput{
		UploadID: session.UploadID, ResumableURI: session.ResumableURI,
		FileSize: 10, Body: []byte("0123456789"),
	})
	dalErr := requireDALType(t, err, dal.BadRequest)
	if dalErr.Message != "upload session has expired" {
		t.Fatalf("unexpected message %q", dalErr.Message)
	}
}

func TestStatusUnknownUpload(t *testing.T) {
	c := newTestCoordinator(t, &fakeProvider{})
	_, err := c.Status(t.Context(), uuid.NewString())
	requireDALType(t, err, dal.NotFound)
}
