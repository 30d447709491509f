package api

import "time"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Me is the /auth/me payload.
type Me struct {
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}

type Genre struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Director struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Movie struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ReleaseYear     int       `json:"releaseYear"`
	DurationMinutes int       `json:"durationMinutes"`
	VideoFileID     *string   `json:"videoFileID,omitempty"`
	Director        *Director `json:"director,omitempty"`
	Genres          []Genre   `json:"genres"`
	PosterURL       string    `json:"posterURL,omitempty"`
	Playable        bool      `json:"playable"`
	Favorited       bool      `json:"favorited"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DriveFile is the metadata returned once an upload is finalized.
type DriveFile struct {
	FileID         string `json:"fileId"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Size           int64  `json:"size"`
	WebViewLink    string `json:"webViewLink,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
	EmbedLink      string `json:"embedLink"`
}

type UploadSession struct {
	UploadID     string `json:"uploadId"`
	ResumableURI string `json:"resumableUri"`
}

type UploadStatus struct {
	UploadID   string     `json:"uploadId"`
	FileName   string     `json:"fileName"`
	FileSize   int64      `json:"fileSize"`
	MimeType   string     `json:"mimeType"`
	NextOffset int64      `json:"nextOffset"`
	Status     string     `json:"status"`
	File       *DriveFile `json:"file,omitempty"`
}

// chunkReply covers both chunk answers: an acknowledgement carrying
// nextOffset, or the finished file's metadata.
type chunkReply struct {
	UploadID   string `json:"uploadId"`
	NextOffset int64  `json:"nextOffset"`
	DriveFile
}

type UploadHints struct {
	ChunkSize     int64 `json:"chunkSize"`
	RetryAttempts int   `json:"retryAttempts"`
	RetryDelayMs  int64 `json:"retryDelayMs"`
}

type UploadLimits struct {
	MaxFileSize      int64        `json:"maxFileSize"`
	AllowedMimeTypes []string     `json:"allowedMimeTypes"`
	Recommended      *UploadHints `json:"recommended,omitempty"`
}

type VersionInfo struct {
	Version    string       `json:"version"`
	APIVersion string       `json:"apiVersion"`
	Upload     UploadLimits `json:"upload"`
}
