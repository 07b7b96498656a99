// Package clipboard orchestrates creating and reading clipboard items on top
// of the chunking engine, the blob store and the metadata ledger.
package clipboard

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/sync/singleflight"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/chunker"
	"github.com/rohits-web03/clipdrop/internal/ledger"
	"github.com/rohits-web03/clipdrop/internal/models"
)

const (
	textFilename    = "clipboard.txt"
	textContentType = "text/plain; charset=utf-8"
	defaultFilename = "file"
	defaultFileType = "application/octet-stream"
)

var chunkName = regexp.MustCompile(`\.chunk\.\d+$`)

type Options struct {
	PublicURL     string
	MaxUploadSize int64
	// Wait bounds how long Create blocks for the store to commit.
	Wait         time.Duration
	PollInterval time.Duration
	Retention    RetentionPolicy
	Logger       *slog.Logger
	Now          func() time.Time
}

type Service struct {
	store  blobstore.Store
	engine *chunker.Engine
	ledger ledger.Ledger
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	reads  singleflight.Group
}

func NewService(store blobstore.Store, engine *chunker.Engine, l ledger.Ledger, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 30 * time.Second
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Service{
		store:  store,
		engine: engine,
		ledger: l,
		opts:   opts,
		logger: opts.Logger.With("component", "clipboard"),
		now:    opts.Now,
	}
}

// URL is the public link for id.
func (s *Service) URL(id string) string {
	return s.opts.PublicURL + "/clip/" + id
}

type payload struct {
	kind        string
	data        []byte
	filename    string
	contentType string
}

func (s *Service) decode(req CreateRequest) (payload, error) {
	var p payload
	switch req.Kind {
	case models.KindText:
		if req.Content == "" {
			return p, fmt.Errorf("%w: content is required for text items", ErrInvalidRequest)
		}
		p = payload{kind: models.KindText, data: []byte(req.Content), filename: textFilename, contentType: textContentType}
	case models.KindFile:
		if req.FileData == "" {
			return p, fmt.Errorf("%w: fileData is required for file items", ErrInvalidRequest)
		}
		raw := req.FileData
		if strings.HasPrefix(raw, "data:") {
			if i := strings.Index(raw, ","); i >= 0 {
				raw = raw[i+1:]
			}
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return p, fmt.Errorf("%w: fileData is not valid base64", ErrInvalidRequest)
		}
		if len(data) == 0 {
			return p, fmt.Errorf("%w: file is empty", ErrInvalidRequest)
		}
		p = payload{kind: models.KindFile, data: data, filename: req.FileName, contentType: req.FileType}
		if p.filename == "" {
			p.filename = defaultFilename
		}
		if p.contentType == "" {
			p.contentType = defaultFileType
		}
	default:
		return p, fmt.Errorf("%w: kind must be %q or %q", ErrInvalidRequest, models.KindText, models.KindFile)
	}

	if s.opts.MaxUploadSize > 0 && int64(len(p.data)) > s.opts.MaxUploadSize {
		return p, fmt.Errorf("%w: %s exceeds the %s limit", ErrTooLarge,
			units.HumanSize(float64(len(p.data))), units.HumanSize(float64(s.opts.MaxUploadSize)))
	}
	return p, nil
}

// Create stores a clipboard item and waits, for at most Options.Wait, for
// the blob store to report it committed. A store that is still working when
// the window closes yields StatusUploading rather than an error.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	p, err := s.decode(req)
	if err != nil {
		return CreateResult{}, err
	}

	now := s.now()
	retention, err := s.opts.Retention.Resolve(now, req.ExpiresAt, req.TTLDays)
	if err != nil {
		return CreateResult{}, err
	}
	expiresAt := now.Add(retention).UTC()

	// Once started the pipeline runs to completion or hard failure; a
	// caller going away must not strand chunks without a manifest.
	id, err := s.engine.Store(context.WithoutCancel(ctx), p.data, chunker.StoreOptions{
		Filename:    p.filename,
		ContentType: p.contentType,
		TTLDays:     durationToDays(retention),
		ExpiresAt:   &expiresAt,
		Owner:       req.Owner,
	})
	if err != nil {
		s.logger.Error("Failed to store clipboard item", "kind", p.kind, "size", len(p.data), "error", err)
		return CreateResult{}, err
	}
	s.logger.Info("Clipboard item stored", "id", id, "kind", p.kind, "size", units.HumanSize(float64(len(p.data))), "chunked", s.engine.Chunked(len(p.data)))

	result := CreateResult{
		Success:   true,
		ID:        id,
		URL:       s.URL(id),
		Status:    StatusUploading,
		ExpiresAt: expiresAt,
	}

	st, done, err := s.awaitCommit(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}
	if done {
		result.Status = StatusCompleted
		result.BlockchainInfo = linkageFrom(st.FileInfo)
	}

	s.commit(ctx, models.ClipboardItem{
		ID:          id,
		Kind:        p.kind,
		Filename:    p.filename,
		ContentType: p.contentType,
		Size:        int64(len(p.data)),
		Chunked:     s.engine.Chunked(len(p.data)),
		ChunkCount:  chunkCount(s.engine, len(p.data)),
		Owner:       req.Owner,
		Checksum:    chunker.Checksum(p.data),
		ExpiresAt:   expiresAt,
	})
	return result, nil
}

func chunkCount(e *chunker.Engine, n int) int {
	if !e.Chunked(n) {
		return 1
	}
	return chunker.ChunkCountFor(int64(n), e.ChunkSize())
}

// commit records the item in the ledger. A ledger outage must not fail a
// creation the blob store already accepted.
func (s *Service) commit(ctx context.Context, item models.ClipboardItem) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Commit(context.WithoutCancel(ctx), item); err != nil {
		s.logger.Warn("Ledger commit failed", "id", item.ID, "error", err)
	}
}

// awaitCommit polls the store until it reports a terminal status or the
// wait window closes. Poll errors are logged and retried. A cancelled ctx
// ends the wait like an exhausted window: the item is already stored.
func (s *Service) awaitCommit(ctx context.Context, id string) (blobstore.Status, bool, error) {
	deadline := time.NewTimer(s.opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var last blobstore.Status
	for attempt := 1; ; attempt++ {
		st, err := s.store.Status(ctx, id)
		switch {
		case err != nil:
			s.logger.Warn("Status poll failed", "id", id, "attempt", attempt, "error", err)
		case st.Failed():
			msg := st.Error
			if msg == "" {
				msg = "blob store reported failure"
			}
			s.logger.Error("Upload failed remotely", "id", id, "error", msg)
			return st, false, fmt.Errorf("%w: %s", ErrUploadFailed, msg)
		case st.Terminal():
			return st, true, nil
		default:
			last = st
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Caller left before upload committed", "id", id, "polls", attempt, "error", ctx.Err())
			return last, false, nil
		case <-deadline.C:
			s.logger.Info("Upload still in progress after wait window", "id", id, "wait", s.opts.Wait.String(), "polls", attempt)
			return last, false, nil
		case <-ticker.C:
		}
	}
}

type loaded struct {
	data []byte
	info chunker.Info
}

// fetch resolves id to bytes, rejecting expired items. Concurrent fetches
// of the same id share one load.
func (s *Service) fetch(ctx context.Context, id string) (loaded, *models.ClipboardItem, error) {
	now := s.now()

	var rec *models.ClipboardItem
	if s.ledger != nil {
		item, err := s.ledger.Get(ctx, id)
		switch {
		case err == nil:
			if item.Expired(now) {
				return loaded{}, nil, ErrExpired
			}
			rec = &item
		case errors.Is(err, ledger.ErrNotFound):
		default:
			s.logger.Warn("Ledger lookup failed", "id", id, "error", err)
		}
	}

	// The shared load is detached from any one caller; each caller waits
	// on its own ctx.
	ch := s.reads.DoChan(id, func() (any, error) {
		data, info, err := s.engine.Load(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		return loaded{data: data, info: info}, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return loaded{}, nil, ctx.Err()
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			return loaded{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		case errors.Is(err, blobstore.ErrExpired):
			return loaded{}, nil, fmt.Errorf("%w: %s", ErrExpired, id)
		}
		return loaded{}, nil, err
	}
	l := res.Val.(loaded)

	if !l.info.ExpiresAt.IsZero() && !now.Before(l.info.ExpiresAt) {
		return loaded{}, nil, fmt.Errorf("%w: %s", ErrExpired, id)
	}
	return l, rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	l, rec, err := s.fetch(ctx, id)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		ID:         id,
		Kind:       models.KindFile,
		FileName:   l.info.Filename,
		FileType:   l.info.ContentType,
		Size:       l.info.Size,
		Chunked:    l.info.Chunked,
		ChunkCount: l.info.ChunkCount,
		CreatedAt:  l.info.CreatedAt,
		ExpiresAt:  l.info.ExpiresAt,
	}
	if rec != nil {
		item.Kind = rec.Kind
		item.ExpiresAt = rec.ExpiresAt
	} else if l.info.Filename == textFilename && strings.HasPrefix(l.info.ContentType, "text/plain") {
		item.Kind = models.KindText
	}

	if item.Kind == models.KindText {
		item.Content = string(l.data)
	} else {
		item.FileData = base64.StdEncoding.EncodeToString(l.data)
	}
	return item, nil
}

func (s *Service) Download(ctx context.Context, id string) (Blob, error) {
	l, _, err := s.fetch(ctx, id)
	if err != nil {
		return Blob{}, err
	}
	ct := l.info.ContentType
	if ct == "" {
		ct = defaultFileType
	}
	name := l.info.Filename
	if name == "" {
		name = id
	}
	return Blob{Data: l.data, FileName: name, ContentType: ct}, nil
}

// Progress returns the store's current view of an upload.
func (s *Service) Progress(ctx context.Context, id string) (blobstore.Status, error) {
	st, err := s.store.Status(ctx, id)
	if errors.Is(err, blobstore.ErrNotFound) {
		return blobstore.Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st, err
}

// Mine lists an owner's items. Chunk objects are hidden and manifests are
// shown under their original filename.
func (s *Service) Mine(ctx context.Context, owner string) ([]blobstore.FileInfo, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	all, err := s.store.ByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]blobstore.FileInfo, 0, len(all))
	for _, fi := range all {
		if chunkName.MatchString(fi.OriginalFilename) {
			continue
		}
		if fi.ContentType == chunker.ManifestContentType {
			fi.OriginalFilename = strings.TrimSuffix(fi.OriginalFilename, ".manifest")
		}
		out = append(out, fi)
	}
	return out, nil
}

func (s *Service) Quota(ctx context.Context) (blobstore.Quota, error) {
	return s.store.Quota(ctx)
}
