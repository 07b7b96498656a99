package clipboard

import (
	"time"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
)

// Creation statuses returned to callers.
const (
	StatusCompleted = "completed"
	StatusUploading = "uploading"
)

type CreateRequest struct {
	Kind     string `json:"kind" example:"text"`
	Content  string `json:"content,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	// FileData is standard base64, optionally as a data URL.
	FileData  string     `json:"fileData,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	TTLDays   *float64   `json:"ttlDays,omitempty"`

	// Owner is resolved from the caller's identity token, never from the body.
	Owner string `json:"-"`
}

type CreateResult struct {
	Success        bool      `json:"success"`
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Status         string    `json:"status" example:"completed"`
	ExpiresAt      time.Time `json:"expiresAt"`
	BlockchainInfo *Linkage  `json:"blockchainInfo,omitempty"`
}

// Linkage is the durable-storage metadata reported once the blob store has
// committed an upload.
type Linkage struct {
	FileID     string     `json:"fileId"`
	EntityKeys []string   `json:"entityKeys,omitempty"`
	Checksum   string     `json:"checksum,omitempty"`
	ChunkCount int        `json:"chunkCount,omitempty"`
	FileSize   int64      `json:"fileSize,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

func linkageFrom(fi *blobstore.FileInfo) *Linkage {
	if fi == nil {
		return nil
	}
	return &Linkage{
		FileID:     fi.FileID,
		EntityKeys: fi.EntityKeys,
		Checksum:   fi.Checksum,
		ChunkCount: fi.ChunkCount,
		FileSize:   fi.FileSize,
		ExpiresAt:  fi.ExpiresAt,
	}
}

// Item is a reconstructed clipboard entry. Text items carry Content, file
// items carry FileData as base64.
type Item struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	FileType   string    `json:"fileType,omitempty"`
	FileData   string    `json:"fileData,omitempty"`
	Size       int64     `json:"size"`
	Chunked    bool      `json:"chunked"`
	ChunkCount int       `json:"chunkCount"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Blob is the raw payload handed to download responses.
type Blob struct {
	Data        []byte
	FileName    string
	ContentType string
}
