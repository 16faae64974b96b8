package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/intake"
	"github.com/nikhilbhutani/docingest/internal/models"
)

// DocumentCache is an optional read-through cache for terminal documents.
type DocumentCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Put(ctx context.Context, doc *models.Document) (bool, error)
}

type DocumentHandler struct {
	intake   *intake.Service
	store    document.Store
	cache    DocumentCache
	maxFiles int
	maxSize  int64
}

func NewDocumentHandler(svc *intake.Service, store document.Store, cache DocumentCache, maxFiles int, maxSize int64) *DocumentHandler {
	return &DocumentHandler{intake: svc, store: store, cache: cache, maxFiles: maxFiles, maxSize: maxSize}
}

type acceptedFile struct {
	DocID     string `json:"doc_id"`
	SourceURI string `json:"source_uri"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	FileHash  string `json:"file_hash"`
	Status    string `json:"status"`
}

type rejectedFile struct {
	FileIndex  int    `json:"file_index"`
	FileName   string `json:"filename"`
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

type uploadResponse struct {
	ProcessedFiles int            `json:"processed_files"`
	FailedFiles    int            `json:"failed_files"`
	Files          []acceptedFile `json:"files"`
	Errors         []rejectedFile `json:"errors,omitempty"`
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxFiles)*h.maxSize+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one file must be provided"})
		return
	}
	if len(files) > h.maxFiles {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "too many files, maximum " + strconv.Itoa(h.maxFiles) + " per request",
		})
		return
	}

	resp := uploadResponse{Files: []acceptedFile{}}
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			resp.Errors = append(resp.Errors, rejectedFile{FileIndex: i, FileName: fh.Filename, Error: err.Error(), StatusCode: http.StatusBadRequest})
			continue
		}
		doc, err := h.intake.Accept(r.Context(), fh.Filename, f)
		f.Close()
		if err != nil {
			code := http.StatusInternalServerError
			if intake.IsClientError(err) {
				code = http.StatusBadRequest
			} else {
				slog.Error("accept upload failed", "filename", fh.Filename, "error", err)
			}
			resp.Errors = append(resp.Errors, rejectedFile{FileIndex: i, FileName: fh.Filename, Error: err.Error(), StatusCode: code})
			continue
		}
		resp.Files = append(resp.Files, acceptedFile{
			DocID:     doc.ID.String(),
			SourceURI: doc.SourceLocation,
			FileName:  fh.Filename,
			FileSize:  doc.SizeBytes,
			FileHash:  doc.ContentHash,
			Status:    "accepted",
		})
	}
	resp.ProcessedFiles = len(resp.Files)
	resp.FailedFiles = len(resp.Errors)

	status := http.StatusAccepted
	if resp.ProcessedFiles == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", models.DocStatusPending, models.DocStatusQueued, models.DocStatusSuccess, models.DocStatusFailed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
		return
	}

	docs, err := h.store.List(r.Context(), status, limit, offset)
	if err != nil {
		slog.Error("list documents failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list documents"})
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return
	}

	if h.cache != nil {
		if doc, err := h.cache.Get(r.Context(), id); err != nil {
			slog.Warn("document cache read failed", "doc_id", id, "error", err)
		} else if doc != nil {
			writeJSON(w, http.StatusOK, doc)
			return
		}
	}

	doc, err := h.store.Get(r.Context(), id)
	if errors.Is(err, document.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	if err != nil {
		slog.Error("get document failed", "doc_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load document"})
		return
	}

	if h.cache != nil {
		if _, err := h.cache.Put(r.Context(), doc); err != nil {
			slog.Warn("document cache write failed", "doc_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document ID"})
		return
	}

	chunk, err := h.store.ChunkFor(r.Context(), id)
	if errors.Is(err, document.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chunk not found"})
		return
	}
	if err != nil {
		slog.Error("get chunk failed", "doc_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load chunk"})
		return
	}

	writeJSON(w, http.StatusOK, chunk)
}
