package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rohits-web03/clipdrop/internal/api/middleware"
	"github.com/rohits-web03/clipdrop/internal/blobstore"
	"github.com/rohits-web03/clipdrop/internal/chunker"
	"github.com/rohits-web03/clipdrop/internal/clipboard"
	"github.com/rohits-web03/clipdrop/internal/hub"
	"github.com/rohits-web03/clipdrop/internal/utils"
)

// ItemResponse is returned by GET /v1/clipboard/{id}.
type ItemResponse struct {
	Success bool `json:"success"`
	clipboard.Item
}

type Clipboard struct {
	svc     *clipboard.Service
	maxBody int64
	logger  *slog.Logger
}

// NewClipboard builds the clipboard handlers. Request bodies are capped at
// the base64 size of maxUploadSize plus room for the JSON envelope.
func NewClipboard(svc *clipboard.Service, maxUploadSize int64, logger *slog.Logger) *Clipboard {
	return &Clipboard{
		svc:     svc,
		maxBody: maxUploadSize/3*4 + 4 + 64<<10,
		logger:  logger.With("component", "handlers"),
	}
}

// writeError maps service errors onto status codes.
func (h *Clipboard) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	var (
		statusErr *blobstore.StatusError
		chunkErr  *chunker.ChunkError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.Is(err, clipboard.ErrInvalidRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, clipboard.ErrTooLarge), errors.As(err, &maxErr):
		status, message = http.StatusRequestEntityTooLarge, "Payload too large"
	case errors.Is(err, clipboard.ErrNotFound):
		status, message = http.StatusNotFound, "Clipboard item not found"
	case errors.Is(err, clipboard.ErrExpired):
		status, message = http.StatusGone, "Clipboard item has expired"
	case errors.Is(err, clipboard.ErrUploadFailed):
		status, message = http.StatusBadGateway, err.Error()
	case errors.Is(err, blobstore.ErrUnsupported):
		status, message = http.StatusNotImplemented, "Not supported by the configured storage backend"
	case errors.Is(err, chunker.ErrIntegrity), errors.Is(err, chunker.ErrInvalidManifest):
		status, message = http.StatusBadGateway, "Stored content failed integrity checks"
	case errors.As(err, &chunkErr), errors.As(err, &statusErr):
		status, message = http.StatusBadGateway, "Blob store request failed"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Blob store timed out"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", r.URL.Path, "status", status, "request_id", middleware.RequestID(r.Context()), "error", err)
	}
	utils.JSONResponse(w, status, utils.Payload{
		Success: false,
		Message: message,
	})
}

// Create godoc
// @Summary Create a clipboard item
// @Description Stores text or a base64 file and returns a shareable link. Payloads above the chunk size are split into chunks behind a manifest. The response reports "uploading" when the blob store has not committed within the wait window.
// @Tags Clipboard
// @Accept json
// @Produce json
// @Param request body clipboard.CreateRequest true "Clipboard item"
// @Param Authorization header string false "Bearer identity token"
// @Success 201 {object} clipboard.CreateResult
// @Failure 400 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Failure 413 {object} utils.Payload
// @Failure 502 {object} utils.Payload
// @Router /v1/clipboard [post]
func (h *Clipboard) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req clipboard.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, err)
			return
		}
		utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}
	req.Owner = middleware.Owner(r.Context())

	res, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, res)
}

// Get godoc
// @Summary Read a clipboard item
// @Description Returns text inline or a file as base64 with its metadata.
// @Tags Clipboard
// @Produce json
// @Param id path string true "Clipboard id"
// @Success 200 {object} handlers.ItemResponse
// @Failure 404 {object} utils.Payload
// @Failure 410 {object} utils.Payload
// @Router /v1/clipboard/{id} [get]
func (h *Clipboard) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, ItemResponse{Success: true, Item: item})
}

// Progress godoc
// @Summary Upload progress snapshot
// @Description One-shot normalized status, same shape as the websocket progress frame.
// @Tags Clipboard
// @Produce json
// @Param id path string true "Clipboard id"
// @Success 200 {object} hub.ProgressFrame
// @Failure 404 {object} utils.Payload
// @Router /v1/clipboard/{id}/progress [get]
func (h *Clipboard) Progress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, hub.NewProgressFrame(id, st))
}

// Download godoc
// @Summary Download a clipboard item
// @Description Raw bytes with Content-Disposition: attachment.
// @Tags Clipboard
// @Produce octet-stream
// @Param id path string true "Clipboard id"
// @Success 200 {file} binary
// @Failure 404 {object} utils.Payload
// @Failure 410 {object} utils.Payload
// @Router /v1/clipboard/{id}/download [get]
func (h *Clipboard) Download(w http.ResponseWriter, r *http.Request) {
	blob, err := h.svc.Download(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": blob.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// Mine godoc
// @Summary List the caller's items
// @Tags Clipboard
// @Produce json
// @Param Authorization header string true "Bearer identity token"
// @Success 200 {object} utils.Payload{data=[]blobstore.FileInfo}
// @Failure 401 {object} utils.Payload
// @Router /v1/clipboard/mine [get]
func (h *Clipboard) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Mine(r.Context(), middleware.Owner(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Items retrieved successfully",
		Data:    items,
	})
}

// Quota godoc
// @Summary Blob store quota
// @Tags Clipboard
// @Produce json
// @Success 200 {object} utils.Payload{data=blobstore.Quota}
// @Failure 501 {object} utils.Payload
// @Router /v1/quota [get]
func (h *Clipboard) Quota(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Quota(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Quota retrieved successfully",
		Data:    q,
	})
}
