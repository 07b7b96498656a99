// Package blobstoretest provides an in-memory blobstore.Store for tests.
package blobstoretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
)

type object struct {
	data []byte
	info blobstore.FileInfo
	opts blobstore.UploadOptions
}

// StatusFunc scripts the status returned for an id on its n-th poll (1-based).
type StatusFunc func(id string, poll int) (blobstore.Status, error)

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	seq     int
	objects map[string]*object
	order   []string
	polls   map[string]int

	// FailUploadAt makes the n-th Upload call (1-based) fail. Zero disables.
	FailUploadAt int
	UploadErr    error
	// StatusFn overrides the default "completed" status when set.
	StatusFn StatusFunc
	// UploadHook runs before the n-th Upload call (1-based) is stored; a
	// non-nil error fails that call.
	UploadHook func(ctx context.Context, n int) error
	// InfoHook runs before every Info call; a non-nil error is returned.
	InfoHook func(ctx context.Context, id string) error
	QuotaVal blobstore.Quota
	Now      func() time.Time
}

var _ blobstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		objects: make(map[string]*object),
		polls:   make(map[string]int),
		Now:     time.Now,
	}
}

func (s *Store) Upload(ctx context.Context, data []byte, opts blobstore.UploadOptions) (blobstore.UploadResult, error) {
	s.mu.Lock()
	s.seq++
	n, hook := s.seq, s.UploadHook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return blobstore.UploadResult{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUploadAt > 0 && n == s.FailUploadAt {
		err := s.UploadErr
		if err == nil {
			err = fmt.Errorf("injected upload failure #%d", n)
		}
		return blobstore.UploadResult{}, err
	}

	id := fmt.Sprintf("obj-%04d", n)
	buf := make([]byte, len(data))
	copy(buf, data)

	now := s.Now().UTC()
	info := blobstore.FileInfo{
		FileID:           id,
		OriginalFilename: opts.Filename,
		ContentType:      opts.ContentType,
		FileSize:         int64(len(data)),
		ChunkCount:       1,
		CreatedAt:        now,
		Owner:            opts.Owner,
	}
	if opts.TTLDays > 0 {
		exp := now.Add(time.Duration(opts.TTLDays * float64(24*time.Hour)))
		info.ExpiresAt = &exp
	}
	s.objects[id] = &object{data: buf, info: info, opts: opts}
	s.order = append(s.order, id)
	return blobstore.UploadResult{FileID: id, Message: "ok"}, nil
}

func (s *Store) Info(ctx context.Context, id string) (blobstore.FileInfo, error) {
	s.mu.Lock()
	hook := s.InfoHook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, id); err != nil {
			return blobstore.FileInfo{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return blobstore.FileInfo{}, blobstore.ErrNotFound
	}
	return obj.info, nil
}

func (s *Store) Download(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *Store) Status(_ context.Context, id string) (blobstore.Status, error) {
	s.mu.Lock()
	s.polls[id]++
	poll := s.polls[id]
	fn := s.StatusFn
	obj, ok := s.objects[id]
	s.mu.Unlock()

	if fn != nil {
		return fn(id, poll)
	}
	if !ok {
		return blobstore.Status{}, blobstore.ErrNotFound
	}
	info := obj.info
	return blobstore.Status{
		Status:    blobstore.StatusCompleted,
		Completed: true,
		Progress: blobstore.Progress{
			ChunksReceived: 1,
			ChunksUploaded: 1,
			TotalChunks:    1,
			Percentage:     100,
		},
		FileInfo: &info,
	}, nil
}

func (s *Store) ByOwner(_ context.Context, owner string) ([]blobstore.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []blobstore.FileInfo
	for _, id := range s.order {
		if obj := s.objects[id]; obj.info.Owner == owner {
			out = append(out, obj.info)
		}
	}
	return out, nil
}

func (s *Store) Quota(context.Context) (blobstore.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QuotaVal, nil
}

// Count is the number of stored objects.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Polls returns how many Status calls were made for id.
func (s *Store) Polls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[id]
}

// Options returns the upload options recorded for id.
func (s *Store) Options(id string) (blobstore.UploadOptions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return blobstore.UploadOptions{}, false
	}
	return obj.opts, true
}

// IDs lists stored ids in upload order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.order...)
	return out
}

// Put overwrites the bytes of an existing object, e.g. to simulate corruption.
func (s *Store) Put(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[id]; ok {
		obj.data = append([]byte(nil), data...)
		obj.info.FileSize = int64(len(data))
	}
}

// Delete removes an object.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// PolledIDs returns every id that was polled at least once, sorted.
func (s *Store) PolledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.polls))
	for id := range s.polls {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
