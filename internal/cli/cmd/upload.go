package cmd

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/cinestream/server/internal/cli/api"
	"github.com/cinestream/server/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagMime         string
	flagChunkMB      int
	flagRetries      int
	flagRetryDelay   time.Duration
	flagUploadID     string
	flagResumableURI string
	flagMovie        string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a video to Google Drive in resumable chunks",
	Long: `Upload a video through the server's resumable Drive upload API.
Chunks that fail are retried from the offset the server reports.

  cinestream upload movie.mp4
  cinestream upload movie.mp4 --movie <movie-id>        Attach when done
  cinestream upload movie.mp4 --upload-id <id> --resumable-uri <uri>
                                                       Resume an earlier upload`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&flagMime, "mime", "", "MIME type (default: from file extension)")
	uploadCmd.Flags().IntVar(&flagChunkMB, "chunk-size", 0, "Chunk size in MB (default: from config, server or 8)")
	uploadCmd.Flags().IntVar(&flagRetries, "retries", 0, "Attempts per chunk (default: from config, server or 3)")
	uploadCmd.Flags().DurationVar(&flagRetryDelay, "retry-delay", 0, "Delay between attempts (default: from config, server or 2s)")
	uploadCmd.Flags().StringVar(&flagUploadID, "upload-id", "", "Resume this upload session")
	uploadCmd.Flags().StringVar(&flagResumableURI, "resumable-uri", "", "Resumable URI of the session being resumed")
	uploadCmd.Flags().StringVar(&flagMovie, "movie", "", "Movie ID to attach the uploaded file to")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	if (flagUploadID == "") != (flagResumableURI == "") {
		return fmt.Errorf("--upload-id and --resumable-uri must be given together")
	}

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	limits := serverLimits()
	if limits != nil && limits.MaxFileSize > 0 && info.Size() > limits.MaxFileSize {
		return fmt.Errorf("%s is %s, the server accepts at most %s",
			filepath.Base(path), output.FormatSize(info.Size()), output.FormatSize(limits.MaxFileSize))
	}

	var hints *api.UploadHints
	if limits != nil {
		hints = limits.Recommended
	}
	opts := uploadOptions(hints)
	if flagUploadID != "" {
		opts.Resume = &api.UploadSession{UploadID: flagUploadID, ResumableURI: flagResumableURI}
	}
	if !flagJSON {
		opts.Progress = output.Progress
		opts.Started = func(s api.UploadSession) {
			fmt.Fprintf(os.Stderr, "Uploading %s (%s)\n", filepath.Base(path), output.FormatSize(info.Size()))
			fmt.Fprintf(os.Stderr, "  resume with: --upload-id %s --resumable-uri '%s'\n", s.UploadID, s.ResumableURI)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	file, err := apiClient.UploadFile(ctx, f, filepath.Base(path), info.Size(), detectMime(path), opts)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", filepath.Base(path), err)
	}

	if flagMovie != "" {
		if _, err := attachVideo(flagMovie, file.FileID); err != nil {
			return err
		}
	}

	if flagJSON {
		output.JSON(file)
		return nil
	}
	output.UploadResult(*file)
	if flagMovie != "" {
		fmt.Printf("Attached to movie %s\n", flagMovie)
	}
	return nil
}

// serverLimits fetches the upload limits from /version. An unreachable or
// older server yields nil and the upload proceeds on local settings.
func serverLimits() *api.UploadLimits {
	var resp api.Response[api.VersionInfo]
	if err := apiClient.Get("/version", nil, &resp); err != nil {
		return nil
	}
	return &resp.Data.Upload
}

// uploadOptions resolves chunking and retries: flags first, then the config
// file, then the server's recommendation, then built-in defaults.
func uploadOptions(hints *api.UploadHints) api.UploadOptions {
	settings := cfg.Upload
	opts := api.UploadOptions{
		ChunkSize:     settings.ChunkSize(),
		RetryAttempts: settings.Attempts(),
		RetryDelay:    settings.Delay(),
	}
	if hints != nil {
		if settings.ChunkSizeMB <= 0 && hints.ChunkSize > 0 {
			opts.ChunkSize = hints.ChunkSize
		}
		if settings.RetryAttempts <= 0 && hints.RetryAttempts > 0 {
			opts.RetryAttempts = hints.RetryAttempts
		}
		if settings.RetryDelaySeconds <= 0 && hints.RetryDelayMs > 0 {
			opts.RetryDelay = time.Duration(hints.RetryDelayMs) * time.Millisecond
		}
	}
	if flagChunkMB > 0 {
		opts.ChunkSize = int64(flagChunkMB) * 1024 * 1024
	}
	if flagRetries > 0 {
		opts.RetryAttempts = flagRetries
	}
	if flagRetryDelay > 0 {
		opts.RetryDelay = flagRetryDelay
	}
	return opts
}

// videoTypes covers extensions missing from Go's builtin MIME table.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
}

func detectMime(path string) string {
	if flagMime != "" {
		return flagMime
	}
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}
	return "application/octet-stream"
}
