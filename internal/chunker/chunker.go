// Package chunker splits oversized payloads into fixed-size blob store
// objects tied together by a manifest, and reassembles them on read.
//
// Chunk I/O is sequential on purpose: it bounds load on the blob store and
// pins any failure to exactly one chunk index.
package chunker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
)

const (
	DefaultChunkSize         = 512 * units.KiB
	DefaultFallbackRetention = 7 * 24 * time.Hour

	chunkContentType = "application/octet-stream"
	maxPrealloc      = 64 * units.MiB
)

type Options struct {
	ChunkSize int64
	// FallbackRetention is applied on read when a manifest carries no expiry.
	FallbackRetention time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

type Engine struct {
	store             blobstore.Store
	chunkSize         int64
	fallbackRetention time.Duration
	logger            *slog.Logger
	now               func() time.Time
}

func New(store blobstore.Store, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.FallbackRetention <= 0 {
		opts.FallbackRetention = DefaultFallbackRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:             store,
		chunkSize:         opts.ChunkSize,
		fallbackRetention: opts.FallbackRetention,
		logger:            opts.Logger.With("component", "chunker"),
		now:               opts.Now,
	}
}

func (e *Engine) ChunkSize() int64 { return e.chunkSize }

type StoreOptions struct {
	Filename    string
	ContentType string
	TTLDays     float64
	// ExpiresAt is recorded in the manifest so reads can enforce retention.
	ExpiresAt *time.Time
	Owner     string
}

// Chunked reports whether a payload of size n takes the chunked path.
func (e *Engine) Chunked(n int) bool {
	return int64(n) > e.chunkSize
}

// Store uploads data and returns the identifier callers should hand out:
// the object itself for small payloads, the manifest otherwise.
func (e *Engine) Store(ctx context.Context, data []byte, opts StoreOptions) (string, error) {
	if !e.Chunked(len(data)) {
		res, err := e.store.Upload(ctx, data, blobstore.UploadOptions{
			Filename:    opts.Filename,
			ContentType: opts.ContentType,
			TTLDays:     opts.TTLDays,
			Owner:       opts.Owner,
		})
		if err != nil {
			return "", errors.Wrap(err, "direct upload")
		}
		return res.FileID, nil
	}

	total := int64(len(data))
	count := ChunkCountFor(total, e.chunkSize)
	e.logger.Info("Uploading chunked payload",
		"filename", opts.Filename,
		"size", units.HumanSize(float64(total)),
		"chunks", count,
		"chunk_size", units.BytesSize(float64(e.chunkSize)),
	)

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * e.chunkSize
		end := start + e.chunkSize
		if end > total {
			end = total
		}

		res, err := e.store.Upload(ctx, data[start:end], blobstore.UploadOptions{
			Filename:    fmt.Sprintf("%s.chunk.%d", opts.Filename, i),
			ContentType: chunkContentType,
			TTLDays:     opts.TTLDays,
			Owner:       opts.Owner,
		})
		if err != nil {
			e.logger.Error("Chunk upload failed", "filename", opts.Filename, "index", i, "error", err)
			return "", &ChunkError{Op: "upload", Index: i, Err: err}
		}
		ids = append(ids, res.FileID)
		e.logger.Debug("Chunk uploaded", "filename", opts.Filename, "index", i, "id", res.FileID)
	}

	manifest := Manifest{
		Version:          manifestVersion,
		OriginalFilename: opts.Filename,
		ContentType:      opts.ContentType,
		TotalSize:        total,
		ChunkCount:       count,
		ChunkSize:        e.chunkSize,
		Chunks:           ids,
		Checksum:         Checksum(data),
		CreatedAt:        e.now().UTC(),
		ExpiresAt:        opts.ExpiresAt,
	}
	body, err := manifest.Marshal()
	if err != nil {
		return "", errors.Wrap(err, "marshal manifest")
	}

	res, err := e.store.Upload(ctx, body, blobstore.UploadOptions{
		Filename:    opts.Filename + ".manifest",
		ContentType: ManifestContentType,
		TTLDays:     opts.TTLDays,
		Owner:       opts.Owner,
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload manifest for %d chunks", count)
	}

	e.logger.Info("Chunked payload stored", "filename", opts.Filename, "manifest_id", res.FileID, "chunks", count)
	return res.FileID, nil
}

// Info describes a reconstructed payload.
type Info struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	ChunkCount  int
	Chunked     bool
	Checksum    string
	Owner       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Reassemble fetches the manifest stored under id and every chunk it lists,
// in order. A length or checksum mismatch is fatal.
func (e *Engine) Reassemble(ctx context.Context, id string) ([]byte, Info, error) {
	raw, err := e.store.Download(ctx, id)
	if err != nil {
		return nil, Info{}, errors.Wrapf(err, "download manifest %s", id)
	}
	manifest, err := ParseManifest(raw)
	if err != nil {
		return nil, Info{}, errors.Wrapf(err, "parse manifest %s", id)
	}

	prealloc := manifest.TotalSize
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	buf := bytes.NewBuffer(make([]byte, 0, prealloc))

	for i, chunkID := range manifest.Chunks {
		part, err := e.store.Download(ctx, chunkID)
		if err != nil {
			e.logger.Error("Chunk download failed", "manifest_id", id, "index", i, "chunk_id", chunkID, "error", err)
			return nil, Info{}, &ChunkError{Op: "download", Index: i, ID: chunkID, Err: err}
		}
		start, end := manifest.ChunkRange(i)
		if got := int64(len(part)); got != end-start {
			e.logger.Error("Chunk size mismatch", "manifest_id", id, "index", i, "want", end-start, "got", got)
			return nil, Info{}, &ChunkError{
				Op:    "verify",
				Index: i,
				ID:    chunkID,
				Err:   fmt.Errorf("%w: %d bytes, want %d", ErrIntegrity, got, end-start),
			}
		}
		buf.Write(part)
	}

	if got := int64(buf.Len()); got != manifest.TotalSize {
		e.logger.Error("Reassembled size mismatch", "manifest_id", id, "want", manifest.TotalSize, "got", got)
		return nil, Info{}, fmt.Errorf("%w: manifest %s expects %d bytes, assembled %d", ErrIntegrity, id, manifest.TotalSize, got)
	}
	data := buf.Bytes()
	if manifest.Checksum != "" && Checksum(data) != manifest.Checksum {
		e.logger.Error("Reassembled checksum mismatch", "manifest_id", id)
		return nil, Info{}, fmt.Errorf("%w: manifest %s checksum mismatch", ErrIntegrity, id)
	}

	info := Info{
		ID:          id,
		Filename:    manifest.OriginalFilename,
		ContentType: manifest.ContentType,
		Size:        manifest.TotalSize,
		ChunkCount:  manifest.ChunkCount,
		Chunked:     true,
		Checksum:    manifest.Checksum,
		CreatedAt:   manifest.CreatedAt,
	}
	if manifest.ExpiresAt != nil {
		info.ExpiresAt = *manifest.ExpiresAt
	} else {
		info.ExpiresAt = manifest.CreatedAt.Add(e.fallbackRetention)
		e.logger.Warn("Manifest has no expiry, applying fallback retention",
			"manifest_id", id,
			"fallback", e.fallbackRetention.String(),
		)
	}
	return data, info, nil
}

// Load reads any identifier: manifests are reassembled, plain objects are
// downloaded as-is.
func (e *Engine) Load(ctx context.Context, id string) ([]byte, Info, error) {
	fi, err := e.store.Info(ctx, id)
	if err != nil {
		return nil, Info{}, err
	}

	if fi.ContentType == ManifestContentType {
		data, info, err := e.Reassemble(ctx, id)
		if err != nil {
			return nil, Info{}, err
		}
		info.Owner = fi.Owner
		return data, info, nil
	}

	data, err := e.store.Download(ctx, id)
	if err != nil {
		return nil, Info{}, err
	}
	info := Info{
		ID:          id,
		Filename:    fi.OriginalFilename,
		ContentType: fi.ContentType,
		Size:        int64(len(data)),
		ChunkCount:  1,
		Checksum:    fi.Checksum,
		Owner:       fi.Owner,
		CreatedAt:   fi.CreatedAt,
	}
	if fi.ExpiresAt != nil {
		info.ExpiresAt = *fi.ExpiresAt
	} else {
		info.ExpiresAt = fi.CreatedAt.Add(e.fallbackRetention)
	}
	return data, info, nil
}
