package blobstore_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/logging"
)

func newTestClient(t *testing.T, h http.Handler) *blobstore.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return blobstore.NewClient(blobstore.ClientOptions{
		BaseURL:      srv.URL + "/",
		APIKey:       "secret-key",
		Timeout:      2 * time.Second,
		RetryMax:     3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       logging.Discard(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientUploadSendsMultipartForm(t *testing.T) {
	var (
		gotFile    []byte
		gotName    string
		gotType    string
		gotTTL     string
		gotOwner   string
		gotHeaders http.Header
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/files", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		gotFile, _ = io.ReadAll(f)
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		gotTTL = r.FormValue("ttlDays")
		gotOwner = r.FormValue("owner")
		gotHeaders = r.Header.Clone()

		writeJSON(w, http.StatusOK, map[string]string{"file_id": "abc123", "message": "queued"})
	}))

	res, err := client.Upload(context.Background(), []byte("hello"), blobstore.UploadOptions{
		Filename:       "note.txt",
		ContentType:    "text/plain",
		TTLDays:        1.5,
		Owner:          "user-1",
		IdempotencyKey: "fixed-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.FileID)
	assert.Equal(t, "queued", res.Message)

	assert.Equal(t, []byte("hello"), gotFile)
	assert.Equal(t, "note.txt", gotName)
	assert.Equal(t, "text/plain", gotType)
	assert.Equal(t, "1.5", gotTTL)
	assert.Equal(t, "user-1", gotOwner)
	assert.Equal(t, "secret-key", gotHeaders.Get("X-API-Key"))
	assert.Equal(t, "fixed-key", gotHeaders.Get("Idempotency-Key"))
	assert.Equal(t, "1.5", gotHeaders.Get("BTL-Days"))
}

func TestClientUploadRetriesWithSameIdempotencyKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		attempt := len(keys)
		mu.Unlock()

		if attempt == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"file_id": "retry-ok"})
	}))

	res, err := client.Upload(context.Background(), []byte("payload"), blobstore.UploadOptions{Filename: "a.bin"})
	require.NoError(t, err)
	assert.Equal(t, "retry-ok", res.FileID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestClientUploadMissingFileID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "nothing"})
	}))
	_, err := client.Upload(context.Background(), []byte("x"), blobstore.UploadOptions{Filename: "x"})
	require.Error(t, err)
}

func TestClientInfoStatusAndDownload(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/{id}/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, blobstore.FileInfo{
			FileID:           r.PathValue("id"),
			OriginalFilename: "photo.png",
			ContentType:      "image/png",
			FileSize:         42,
			ChunkCount:       1,
			CreatedAt:        created,
		})
	})
	mux.HandleFunc("GET /files/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "uploading",
			"completed": false,
			"progress": map[string]any{
				"chunks_uploaded": 2,
				"total_chunks":    4,
				"percentage":      50,
				"elapsed_seconds": 3.5,
			},
		})
	})
	mux.HandleFunc("GET /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("raw-bytes"))
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	info, err := client.Info(ctx, "obj-1")
	require.NoError(t, err)
	assert.Equal(t, "obj-1", info.FileID)
	assert.Equal(t, "photo.png", info.OriginalFilename)
	assert.True(t, created.Equal(info.CreatedAt))

	st, err := client.Status(ctx, "obj-1")
	require.NoError(t, err)
	assert.Equal(t, blobstore.StatusUploading, st.Status)
	assert.False(t, st.Terminal())
	assert.Equal(t, 2, st.Progress.ChunksUploaded)
	assert.Equal(t, 4, st.Progress.TotalChunks)
	assert.Nil(t, st.Progress.EstimatedRemainingSeconds)

	data, err := client.Download(ctx, "obj-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-bytes"), data)
}

func TestClientMapsErrorStatuses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/missing/info", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /files/old", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("GET /files/bad/status", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad id", http.StatusBadRequest)
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	_, err := client.Info(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = client.Download(ctx, "old")
	assert.ErrorIs(t, err, blobstore.ErrExpired)

	_, err = client.Status(ctx, "bad")
	var se *blobstore.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "bad id", se.Body)
}

func TestClientByOwnerAcceptsBothShapes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/by-owner/plain", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []blobstore.FileInfo{{FileID: "a"}, {FileID: "b"}})
	})
	mux.HandleFunc("GET /files/by-owner/wrapped", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"files": []blobstore.FileInfo{{FileID: "c"}}})
	})
	mux.HandleFunc("GET /v2/quota", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, blobstore.Quota{UsedBytes: 10, MaxBytes: 100, UploadsToday: 1, MaxUploadsPerDay: 50})
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	files, err := client.ByOwner(ctx, "plain")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b", files[1].FileID)

	files, err = client.ByOwner(ctx, "wrapped")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "c", files[0].FileID)

	q, err := client.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.MaxBytes)
	assert.Equal(t, 50, q.MaxUploadsPerDay)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, blobstore.Status{Status: blobstore.StatusCompleted}.Terminal())
	assert.True(t, blobstore.Status{Status: blobstore.StatusFailed}.Terminal())
	assert.True(t, blobstore.Status{Status: blobstore.StatusFailed}.Failed())
	assert.True(t, blobstore.Status{Completed: true}.Terminal())
	assert.False(t, blobstore.Status{Status: blobstore.StatusUploading}.Terminal())

	// casing and padding from the store do not matter
	assert.True(t, blobstore.Status{Status: "Failed"}.Failed())
	assert.True(t, blobstore.Status{Status: " COMPLETED "}.Terminal())
	assert.False(t, blobstore.Status{Status: "Uploading"}.Terminal())
	assert.Equal(t, "failed", blobstore.Status{Status: " FAILED"}.State())
	assert.Equal(t, "7", blobstore.FormatTTLDays(7))
	assert.Equal(t, "0.25", blobstore.FormatTTLDays(0.25))
}
