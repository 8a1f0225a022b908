package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// docKey extracts the document key from the URL wildcard. Keys contain
// spaces and dots, so encoded forms from clients are unescaped.
func docKey(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeOpError maps a failed synchronizer operation to a response. An
// unreachable store becomes a 503 with a distinct body so the UI can show
// its persistent offline notice instead of a one-shot error toast.
func writeOpError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnreachable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("offline"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(op+" failed"))
	}
}

// ListDocuments handles GET /documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.svc.Documents()
	writeJSON(w, http.StatusOK, DocumentListResponse{
		Documents: docs,
		Total:     len(docs),
	})
}

// GetDocument handles GET /documents/*.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	key := docKey(r)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	doc, err := h.svc.Document(key)
	if err != nil {
		writeOpError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /documents: opens a new draft and schedules
// its first save.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Contents == "" && req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title or contents is required"))
		return
	}
	key, err := h.svc.CreateDraft(req.Title, req.Contents, req.Tags, req.Format)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, DraftStateResponse{Key: key, Status: h.svc.Status().Drafts[key]})
}

// UpdateDocument handles PUT /documents/*: records an edit; the debounce
// scheduler decides when the save actually runs.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	key := docKey(r)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.UpdateDraft(key, req.Title, req.Contents, req.Tags, req.Format); err != nil {
		writeOpError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusAccepted, DraftStateResponse{Key: key, Status: h.svc.Status().Drafts[key]})
}

// FlushDocument handles POST /flush/*: forces the pending save to complete.
func (h *Handler) FlushDocument(w http.ResponseWriter, r *http.Request) {
	key := docKey(r)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	st, err := h.svc.FlushDraft(r.Context(), key)
	if err != nil {
		writeOpError(w, "flush", err)
		return
	}
	writeJSON(w, http.StatusOK, DraftStateResponse{Key: key, Status: string(st)})
}

// DeleteDocument handles DELETE /documents/*.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	key := docKey(r)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), key); err != nil {
		writeOpError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reload handles POST /reload: re-runs a full load from the remote store.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Reload(r.Context())
	if err != nil {
		writeOpError(w, "load", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}
