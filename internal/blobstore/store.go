// Package blobstore talks to the remote content store that holds clipboard
// bytes. The store is the system of record; this package never deletes.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("blobstore: object not found")
	ErrExpired     = errors.New("blobstore: object expired")
	ErrUnsupported = errors.New("blobstore: operation not supported by backend")
)

// Upload states reported by the remote store.
const (
	StatusUploading = "uploading"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store is the narrow surface the upload pipeline needs from a blob backend.
type Store interface {
	Upload(ctx context.Context, data []byte, opts UploadOptions) (UploadResult, error)
	Info(ctx context.Context, id string) (FileInfo, error)
	Download(ctx context.Context, id string) ([]byte, error)
	Status(ctx context.Context, id string) (Status, error)
	ByOwner(ctx context.Context, owner string) ([]FileInfo, error)
	Quota(ctx context.Context) (Quota, error)
}

type UploadOptions struct {
	Filename    string
	ContentType string
	TTLDays     float64
	Owner       string
	// IdempotencyKey is generated when empty. Retries of the same logical
	// upload must reuse it.
	IdempotencyKey string
}

type UploadResult struct {
	FileID  string `json:"file_id"`
	Message string `json:"message"`
}

type FileInfo struct {
	FileID           string     `json:"file_id"`
	OriginalFilename string     `json:"original_filename"`
	ContentType      string     `json:"content_type"`
	FileSize         int64      `json:"file_size"`
	ChunkCount       int        `json:"chunk_count"`
	Checksum         string     `json:"checksum,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Owner            string     `json:"owner,omitempty"`
	EntityKeys       []string   `json:"entity_keys,omitempty"`
}

type Progress struct {
	ChunksReceived            int      `json:"chunks_received"`
	ChunksUploaded            int      `json:"chunks_uploaded"`
	TotalChunks               int      `json:"total_chunks"`
	Percentage                float64  `json:"percentage"`
	ElapsedSeconds            float64  `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`
}

type Status struct {
	Status    string    `json:"status"`
	Completed bool      `json:"completed"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"`
	FileInfo  *FileInfo `json:"file_info,omitempty"`
}

// State is the status value lowercased and trimmed. Stores are not
// consistent about casing.
func (s Status) State() string {
	return strings.ToLower(strings.TrimSpace(s.Status))
}

// Terminal reports whether no further progress can happen.
func (s Status) Terminal() bool {
	state := s.State()
	return s.Completed || state == StatusCompleted || state == StatusFailed
}

func (s Status) Failed() bool {
	return s.State() == StatusFailed
}

type Quota struct {
	UsedBytes        int64 `json:"used_bytes"`
	MaxBytes         int64 `json:"max_bytes"`
	UploadsToday     int   `json:"uploads_today"`
	MaxUploadsPerDay int   `json:"max_uploads_per_day"`
}

// StatusError is returned for unexpected non-2xx responses.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("blobstore: %s returned status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("blobstore: %s returned status %d: %s", e.Op, e.Code, e.Body)
}

// FormatTTLDays renders fractional day counts without trailing zeros.
func FormatTTLDays(days float64) string {
	return strconv.FormatFloat(days, 'f', -1, 64)
}
