package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	headerAPIKey         = "X-API-Key"
	headerIdempotencyKey = "Idempotency-Key"
	headerLegacyTTL      = "BTL-Days"

	maxErrorBody = 4 << 10
)

type ClientOptions struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single attempt.
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// Client is the HTTP implementation of Store.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
	logger     *slog.Logger
}

var _ Store = (*Client)(nil)

func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "blobstore")

	rc := retryablehttp.NewClient()
	rc.Logger = logger
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc.HTTPClient.Timeout = timeout
	// Hand the last response back to us so non-2xx bodies can be reported.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: rc,
		logger:     logger,
	}
}

// Upload sends one object as multipart form data. The same idempotency key is
// sent on every retry attempt so the store can deduplicate resends.
func (c *Client) Upload(ctx context.Context, data []byte, opts UploadOptions) (UploadResult, error) {
	idempotencyKey := opts.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(opts.Filename)))
	partHeader.Set("Content-Type", contentType)
	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return UploadResult{}, fmt.Errorf("failed to write file part: %w", err)
	}
	ttl := FormatTTLDays(opts.TTLDays)
	if opts.TTLDays > 0 {
		if err := mw.WriteField("ttlDays", ttl); err != nil {
			return UploadResult{}, fmt.Errorf("failed to write ttlDays field: %w", err)
		}
	}
	if opts.Owner != "" {
		if err := mw.WriteField("owner", opts.Owner); err != nil {
			return UploadResult{}, fmt.Errorf("failed to write owner field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", body.Bytes())
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerIdempotencyKey, idempotencyKey)
	if opts.TTLDays > 0 {
		req.Header.Set(headerLegacyTTL, ttl)
	}

	c.logger.Debug("uploading object",
		"filename", opts.Filename,
		"size", len(data),
		"idempotency_key", idempotencyKey,
	)

	var out UploadResult
	if err := c.doJSON(req, "upload", &out); err != nil {
		return UploadResult{}, err
	}
	if out.FileID == "" {
		return UploadResult{}, fmt.Errorf("blobstore: upload response missing file_id")
	}
	return out, nil
}

func (c *Client) Info(ctx context.Context, id string) (FileInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/info", nil)
	if err != nil {
		return FileInfo{}, err
	}
	var out FileInfo
	if err := c.doJSON(req, "info", &out); err != nil {
		return FileInfo{}, err
	}
	if out.FileID == "" {
		out.FileID = id
	}
	return out, nil
}

func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blobstore: download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, "download"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read body of %s: %w", id, err)
	}
	return data, nil
}

func (c *Client) Status(ctx context.Context, id string) (Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/status", nil)
	if err != nil {
		return Status{}, err
	}
	var out Status
	if err := c.doJSON(req, "status", &out); err != nil {
		return Status{}, err
	}
	return out, nil
}

func (c *Client) ByOwner(ctx context.Context, owner string) ([]FileInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/by-owner/"+url.PathEscape(owner), nil)
	if err != nil {
		return nil, err
	}

	// The store has answered both a bare list and a wrapped {"files": [...]}.
	var raw json.RawMessage
	if err := c.doJSON(req, "by-owner", &raw); err != nil {
		return nil, err
	}
	var files []FileInfo
	if err := json.Unmarshal(raw, &files); err == nil {
		return files, nil
	}
	var wrapped struct {
		Files []FileInfo `json:"files"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("blobstore: decode by-owner response: %w", err)
	}
	return wrapped.Files, nil
}

func (c *Client) Quota(ctx context.Context) (Quota, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v2/quota", nil)
	if err != nil {
		return Quota{}, err
	}
	var out Quota
	if err := c.doJSON(req, "quota", &out); err != nil {
		return Quota{}, err
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*retryablehttp.Request, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("blobstore: base URL is empty")
	}
	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create %s %s request: %w", method, path, err)
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(req *retryablehttp.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("blobstore: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, op); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("blobstore: decode %s response: %w", op, err)
	}
	return nil
}

func checkResponse(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusGone:
		return ErrExpired
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
