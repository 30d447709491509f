package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/internal/metrics"
	"github.com/cinestream/server/internal/upload"
	"github.com/cinestream/server/pkg/logger"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
)

const (
	driveFileScope  = "https://www.googleapis.com/auth/drive.file"
	driveFileFields = "id,name,mimeType,size,webViewLink,webContentLink"
	driveBreaker    = "google-drive"
)

var ErrDriveNotConfigured = errors.New("google drive credentials are not configured")

// DriveClient is the Google Drive resumable upload provider.
type DriveClient struct {
	httpClient  *http.Client
	uploadURL   string
	apiURL      string
	folderID    string
	sharePublic bool
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[*http.Response]
}

var _ upload.Provider = (*DriveClient)(nil)

// NewDriveClient authenticates with the service account key at
// cfg.CredentialsFile.
func NewDriveClient(ctx context.Context, cfg config.DriveConfig) (*DriveClient, error) {
	if cfg.CredentialsFile == "" {
		return nil, ErrDriveNotConfigured
	}
	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	jwtConfig, err := google.JWTConfigFromJSON(key, driveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse drive credentials: %w", err)
	}

	httpClient := jwtConfig.Client(ctx)
	httpClient.Timeout = cfg.ChunkTimeout
	return newDriveClient(httpClient, cfg), nil
}

func newDriveClient(httpClient *http.Client, cfg config.DriveConfig) *DriveClient {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	metrics.ProviderBreakerState.WithLabelValues(driveBreaker).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        driveBreaker,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider_breaker_state_change", map[string]interface{}{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			})
			metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &DriveClient{
		httpClient:  httpClient,
		uploadURL:   strings.TrimRight(cfg.UploadURL, "/"),
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		folderID:    cfg.FolderID,
		sharePublic: cfg.SharePublic,
		limiter:     rate.NewLimiter(limit, burst),
		breaker:     breaker,
	}
}

// do paces and sends req. Transport errors and 5xx answers count as breaker
// failures; the 5xx response body is consumed and closed.
func (d *DriveClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return d.breaker.Execute(func() (*http.Response, error) {
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			return nil, unexpectedStatus(resp)
		}
		return resp, nil
	})
}

type driveMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

func (d *DriveClient) OpenSession(ctx context.Context, req upload.SessionRequest) (string, error) {
	body, err := json.Marshal(driveMetadata{
		Name:     req.FileName,
		MimeType: req.MimeType,
		Parents:  d.parents(),
	})
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("uploadType", "resumable")
	query.Set("supportsAllDrives", "true")
	query.Set("fields", driveFileFields)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.uploadURL+"/files?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	httpReq.Header.Set("X-Upload-Content-Type", req.MimeType)
	httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(req.FileSize, 10))

	resp, err := d.do(ctx, httpReq)
	if err != nil {
		return "", fmt.Errorf("drive open session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("drive open session: %w", unexpectedStatus(resp))
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("drive open session: response has no Location header")
	}
	return location, nil
}

type driveFile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Size           string `json:"size"`
	WebViewLink    string `json:"webViewLink"`
	WebContentLink string `json:"webContentLink"`
}

func (d *DriveClient) PutChunk(ctx context.Context, req upload.ChunkRequest) (*upload.ChunkResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, req.ResumableURI, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.ContentLength = int64(len(req.Body))
	httpReq.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", req.Start, req.End, req.Total))

	resp, err := d.do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("drive put chunk: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPermanentRedirect:
		next, err := parseRangeHeader(resp.Header.Get("Range"))
		if err != nil {
			return nil, fmt.Errorf("drive put chunk: %w", err)
		}
		return &upload.ChunkResult{NextOffset: next}, nil
	case http.StatusOK, http.StatusCreated:
		var file driveFile
		if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
			return nil, fmt.Errorf("drive put chunk: decode file: %w", err)
		}
		if file.ID == "" {
			return nil, errors.New("drive put chunk: completed upload has no file id")
		}
		if d.sharePublic {
			d.shareWithAnyone(ctx, file.ID)
		}
		return &upload.ChunkResult{
			Complete:   true,
			NextOffset: req.Total,
			File:       toFileMetadata(file, req.Total),
		}, nil
	default:
		return nil, fmt.Errorf("drive put chunk: %w", unexpectedStatus(resp))
	}
}

// shareWithAnyone grants anyone-with-link read access so embeds play for
// signed-in viewers. Failures leave the file private and are only logged.
func (d *DriveClient) shareWithAnyone(ctx context.Context, fileID string) {
	body := []byte(`{"role":"reader","type":"anyone"}`)
	endpoint := d.apiURL + "/files/" + url.PathEscape(fileID) + "/permissions?supportsAllDrives=true"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.do(ctx, httpReq)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err = unexpectedStatus(resp)
		}
	}
	metrics.RecordProviderCall("share_file", err, time.Since(start))
	if err != nil {
		logger.Warn("drive_share_failed", map[string]interface{}{
			"file_id": fileID,
			"error":   err.Error(),
		})
	}
}

func (d *DriveClient) parents() []string {
	if d.folderID == "" {
		return nil
	}
	return []string{d.folderID}
}

// EmbedLink is the player URL for a Drive file.
func EmbedLink(fileID string) string {
	return "https://drive.google.com/file/d/" + url.PathEscape(fileID) + "/preview"
}

func toFileMetadata(file driveFile, total int64) *upload.FileMetadata {
	size := total
	if parsed, err := strconv.ParseInt(file.Size, 10, 64); err == nil {
		size = parsed
	}
	return &upload.FileMetadata{
		FileID:         file.ID,
		Name:           file.Name,
		MimeType:       file.MimeType,
		Size:           size,
		WebViewLink:    file.WebViewLink,
		WebContentLink: file.WebContentLink,
		EmbedLink:      EmbedLink(file.ID),
	}
}

// parseRangeHeader turns "bytes=0-1234" into the next offset 1235. An absent
// header means nothing has been stored yet.
func parseRangeHeader(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	bounds, ok := strings.CutPrefix(value, "bytes=")
	if !ok {
		return 0, fmt.Errorf("malformed Range header %q", value)
	}
	_, last, ok := strings.Cut(bounds, "-")
	if !ok {
		return 0, fmt.Errorf("malformed Range header %q", value)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Range header %q", value)
	}
	return end + 1, nil
}

func unexpectedStatus(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// UnconfiguredDrive stands in for Drive when no credentials are set, so the
// catalog keeps working and uploads fail with a clear error.
type UnconfiguredDrive struct{}

func (UnconfiguredDrive) OpenSession(context.Context, upload.SessionRequest) (string, error) {
	return "", ErrDriveNotConfigured
}

func (UnconfiguredDrive) PutChunk(context.Context, upload.ChunkRequest) (*upload.ChunkResult, error) {
	return nil, ErrDriveNotConfigured
}
