package upload

import "context"

// FileMetadata describes a file once the provider has received every byte.
type FileMetadata struct {
	FileID         string `json:"fileId"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	Size           int64  `json:"size"`
	WebViewLink    string `json:"webViewLink,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
	EmbedLink      string `json:"embedLink"`
}

type SessionRequest struct {
	FileName string
	FileSize int64
	MimeType string
}

// ChunkRequest carries bytes [Start, End] of a Total-byte file.
type ChunkRequest struct {
	ResumableURI string
	Start        int64
	End          int64
	Total        int64
	Body         []byte
}

// ChunkResult reports the provider's view after a chunk. When Complete is
// false, NextOffset is the first byte the provider has not stored.
type ChunkResult struct {
	Complete   bool
	NextOffset int64
	File       *FileMetadata
}

// Provider is a remote store that accepts resumable uploads.
type Provider interface {
	OpenSession(ctx context.Context, req SessionRequest) (string, error)
	PutChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error)
}
