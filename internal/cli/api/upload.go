package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const uploadBase = "/upload/google-drive"

// UploadOptions tunes UploadFile. Zero values fall back to sane defaults.
type UploadOptions struct {
	ChunkSize     int64
	RetryAttempts int
	RetryDelay    time.Duration

	// Resume continues an existing session instead of opening a new one.
	Resume *UploadSession

	// Progress is called after every accepted chunk.
	Progress func(sent, total int64)
	// Started is called once the session is known, so callers can print
	// what is needed to resume later.
	Started func(UploadSession)
}

var ErrUploadExpired = errors.New("upload session expired")

// InitUpload opens a resumable upload session on the server.
func (c *Client) InitUpload(name string, size int64, mimeType string) (*UploadSession, error) {
	body := map[string]interface{}{
		"fileName": name,
		"fileSize": size,
		"mimeType": mimeType,
	}
	var resp Response[UploadSession]
	if err := c.Put(uploadBase+"/init", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UploadStatus asks the server how far an upload has progressed.
func (c *Client) UploadStatus(uploadID string) (*UploadStatus, error) {
	var resp Response[UploadStatus]
	if err := c.Get(uploadBase+"/"+uploadID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// SendChunk forwards one byte range. It returns the next offset the server
// expects, or the file metadata once the last byte has been stored.
func (c *Client) SendChunk(ctx context.Context, s UploadSession, start, total int64, chunk []byte) (int64, *DriveFile, error) {
	req, err := c.newRequest(http.MethodPut, uploadBase+"/chunk", bytes.NewReader(chunk))
	if err != nil {
		return 0, nil, err
	}
	req = req.WithContext(ctx)
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Upload-Id", s.UploadID)
	req.Header.Set("X-Resumable-Uri", s.ResumableURI)
	req.Header.Set("X-Chunk-Start", strconv.FormatInt(start, 10))
	req.Header.Set("X-Chunk-End", strconv.FormatInt(start+int64(len(chunk))-1, 10))
	req.Header.Set("X-File-Size", strconv.FormatInt(total, 10))

	var resp Response[chunkReply]
	if err := c.doJSON(req, &resp); err != nil {
		return 0, nil, err
	}
	if resp.Data.FileID != "" {
		file := resp.Data.DriveFile
		return total, &file, nil
	}
	return resp.Data.NextOffset, nil, nil
}

// UploadFile streams r (total bytes long) through the chunk endpoint. Failed
// chunks are retried after asking the server for its confirmed offset, so a
// partially stored chunk is resumed rather than duplicated.
func (c *Client) UploadFile(ctx context.Context, r io.ReaderAt, name string, total int64, mimeType string, opts UploadOptions) (*DriveFile, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 8 * 1024 * 1024
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var offset int64
	session := opts.Resume
	if session == nil {
		s, err := c.InitUpload(name, total, mimeType)
		if err != nil {
			return nil, fmt.Errorf("opening upload session: %w", err)
		}
		session = s
	} else {
		status, err := c.UploadStatus(session.UploadID)
		if err != nil {
			return nil, fmt.Errorf("querying upload %s: %w", session.UploadID, err)
		}
		if done, file, err := settled(status); done {
			return file, err
		}
		offset = status.NextOffset
	}
	if opts.Started != nil {
		opts.Started(*session)
	}

	buf := make([]byte, chunkSize)
	failures := 0
	for {
		n := chunkSize
		if remaining := total - offset; remaining < n {
			n = remaining
		}
		read, err := r.ReadAt(buf[:n], offset)
		if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
			return nil, fmt.Errorf("reading %s at %d: %w", name, offset, err)
		}

		next, file, err := c.SendChunk(ctx, *session, offset, total, buf[:n])
		if err == nil {
			failures = 0
			if opts.Progress != nil {
				opts.Progress(next, total)
			}
			if file != nil {
				return file, nil
			}
			offset = next
			continue
		}

		if !retryable(err) {
			return nil, err
		}
		failures++
		if failures >= attempts {
			return nil, fmt.Errorf("chunk at %d failed after %d attempts: %w", offset, attempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}

		status, serr := c.UploadStatus(session.UploadID)
		if serr != nil {
			if !retryable(serr) {
				return nil, serr
			}
			continue
		}
		if done, file, err := settled(status); done {
			return file, err
		}
		offset = status.NextOffset
	}
}

func settled(status *UploadStatus) (bool, *DriveFile, error) {
	switch status.Status {
	case "completed":
		if status.File == nil {
			return true, nil, fmt.Errorf("upload %s completed without file metadata", status.UploadID)
		}
		return true, status.File, nil
	case "expired":
		return true, nil, ErrUploadExpired
	}
	return false, nil, nil
}

// retryable treats transport failures, 5xx and 429 as transient, along with
// offset disagreements. Auth and policy rejections are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	if apiErr.Retryable() {
		return true
	}
	return apiErr.Status == http.StatusBadRequest && resolvableByStatus(apiErr.Message)
}

// resolvableByStatus matches the rejections that a status query settles: the
// server holds a different offset, or it already finished the file.
func resolvableByStatus(msg string) bool {
	switch {
	case msg == "upload already completed":
		return true
	case strings.HasPrefix(msg, "upload session changed concurrently"):
		return true
	}
	var got, want int64
	_, err := fmt.Sscanf(msg, "chunk starts at byte %d, expected %d", &got, &want)
	return err == nil
}
