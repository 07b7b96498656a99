package api_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohits-web03/clipdrop/internal/api"
	"github.com/rohits-web03/clipdrop/internal/api/handlers"
	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/blobstore/blobstoretest"
	"github.com/rohits-web03/clipdrop/internal/chunker"
	"github.com/rohits-web03/clipdrop/internal/clipboard"
	"github.com/rohits-web03/clipdrop/internal/hub"
	"github.com/rohits-web03/clipdrop/internal/ledger"
	"github.com/rohits-web03/clipdrop/internal/logging"
)

const jwtSecret = "router-secret"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	store   *blobstoretest.Store
	clock   *clock
	handler http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := logging.Discard()
	store := blobstoretest.New()
	store.QuotaVal = blobstore.Quota{UsedBytes: 1024, MaxBytes: 1 << 30, UploadsToday: 3, MaxUploadsPerDay: 100}
	c := &clock{now: time.Now().UTC()}

	engine := chunker.New(store, chunker.Options{Logger: logger})
	svc := clipboard.NewService(store, engine, ledger.NewMemory(), clipboard.Options{
		PublicURL:     "https://clip.example",
		MaxUploadSize: 8 << 20,
		Wait:          200 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		Retention: clipboard.RetentionPolicy{
			DefaultTTLDays: 7,
			MaxTTLDays:     30,
			Min:            time.Minute,
		},
		Logger: logger,
		Now:    c.Now,
	})
	progress := hub.New(store, hub.Options{
		PollInterval: 10 * time.Millisecond,
		Grace:        20 * time.Millisecond,
		Logger:       logger,
	})
	t.Cleanup(func() { _ = progress.Shutdown(context.Background()) })

	return &env{
		store: store,
		clock: c,
		handler: api.SetupRouter(api.Deps{
			Clipboard: handlers.NewClipboard(svc, 8<<20, logger),
			Progress:  progress,
			Cors:      cors.Options{AllowedOrigins: []string{"*"}},
			JWTSecret: jwtSecret,
			Logger:    logger,
		}),
	}
}

func (e *env) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) create(t *testing.T, req clipboard.CreateRequest, header http.Header) clipboard.CreateResult {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/clipboard", req, header)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res clipboard.CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func bearer(t *testing.T, owner string) http.Header {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": owner,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return http.Header{"Authorization": []string{"Bearer " + s}}
}

func decodePayload(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTextRoundTrip(t *testing.T) {
	e := newEnv(t)

	res := e.create(t, clipboard.CreateRequest{Kind: "text", Content: "hello"}, nil)
	assert.True(t, res.Success)
	assert.Equal(t, clipboard.StatusCompleted, res.Status)
	assert.Equal(t, "https://clip.example/clip/"+res.ID, res.URL)
	require.NotNil(t, res.BlockchainInfo)
	assert.Equal(t, res.ID, res.BlockchainInfo.FileID)

	rec := e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item handlers.ItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.True(t, item.Success)
	assert.Equal(t, "text", item.Kind)
	assert.Equal(t, "hello", item.Content)
	assert.Empty(t, item.FileData)
	assert.False(t, item.Chunked)
}

func TestLargeFileDownload(t *testing.T) {
	e := newEnv(t)
	payload := make([]byte, 2<<20)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	res := e.create(t, clipboard.CreateRequest{
		Kind:     "file",
		FileName: "report final.pdf",
		FileType: "application/pdf",
		FileData: base64.StdEncoding.EncodeToString(payload),
	}, nil)
	assert.Equal(t, clipboard.StatusCompleted, res.Status)
	assert.Equal(t, 5, e.store.Count())

	rec := e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID+"/download", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report final.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.Equal(payload, rec.Body.Bytes()))

	rec = e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var item handlers.ItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "file", item.Kind)
	assert.True(t, item.Chunked)
	assert.Equal(t, 4, item.ChunkCount)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), item.FileData)
}

func TestErrorStatuses(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/v1/clipboard/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decodePayload(t, rec)["success"])

	req := httptest.NewRequest(http.MethodPost, "/v1/clipboard", strings.NewReader("{broken"))
	raw := httptest.NewRecorder()
	e.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = e.do(t, http.MethodPost, "/v1/clipboard", clipboard.CreateRequest{Kind: "video"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/clipboard", clipboard.CreateRequest{Kind: "file", FileName: "x", FileData: "***"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/clipboard", clipboard.CreateRequest{Kind: "text", Content: "x"},
		http.Header{"Authorization": []string{"Bearer not-a-token"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredItemIsGone(t *testing.T) {
	e := newEnv(t)
	ttl := 1.0
	res := e.create(t, clipboard.CreateRequest{Kind: "text", Content: "short lived", TTLDays: &ttl}, nil)

	e.clock.Advance(25 * time.Hour)

	rec := e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID, nil, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	rec = e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID+"/download", nil, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestMineRequiresOwner(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/v1/clipboard/mine", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	alice := bearer(t, "alice")
	e.create(t, clipboard.CreateRequest{Kind: "text", Content: "from alice"}, alice)
	e.create(t, clipboard.CreateRequest{Kind: "text", Content: "anonymous"}, nil)

	rec = e.do(t, http.MethodGet, "/v1/clipboard/mine", nil, alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodePayload(t, rec)
	assert.Equal(t, true, body["success"])
	items, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "clipboard.txt", items[0].(map[string]any)["original_filename"])
}

func TestProgressAndQuota(t *testing.T) {
	e := newEnv(t)
	res := e.create(t, clipboard.CreateRequest{Kind: "text", Content: "hi"}, nil)

	rec := e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID+"/progress", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frame hub.ProgressFrame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
	assert.Equal(t, hub.TypeProgress, frame.Type)
	assert.Equal(t, res.ID, frame.ClipboardID)
	assert.True(t, frame.Completed)
	assert.Equal(t, 100.0, frame.Progress.Percentage)

	rec = e.do(t, http.MethodGet, "/v1/clipboard/missing/progress", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/quota", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodePayload(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(3), data["uploads_today"])
}

func TestGzipNegotiated(t *testing.T) {
	e := newEnv(t)
	res := e.create(t, clipboard.CreateRequest{Kind: "text", Content: strings.Repeat("compress me ", 200)}, nil)

	rec := e.do(t, http.MethodGet, "/v1/clipboard/"+res.ID, nil, http.Header{"Accept-Encoding": []string{"gzip"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestWebsocketThroughMiddleware(t *testing.T) {
	e := newEnv(t)
	res := e.create(t, clipboard.CreateRequest{Kind: "text", Content: "ws"}, nil)

	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(hub.ClientMessage{Type: hub.TypeSubscribe, ClipboardID: res.ID}))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var sawCompleted bool
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
			break
		}
		var frame hub.ProgressFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame.Type == hub.TypeProgress && frame.Completed {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}
