package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docingest/internal/api/handlers"
	"github.com/nikhilbhutani/docingest/internal/auth"
	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/intake"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/internal/storage"
)

type upload struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newTestServer(t *testing.T, secret string, checks map[string]handlers.Check) (http.Handler, *document.MemoryStore) {
	t.Helper()
	cfg := &config.Config{
		Auth:   config.AuthConfig{JWTSecret: secret},
		Intake: config.IntakeConfig{MaxFileSize: 1 << 20, MaxFiles: 10},
	}
	store := document.NewMemoryStore()
	objects := storage.NewMemoryStorage()
	svc := intake.NewService(store, objects, "uploads", cfg.Intake.MaxFileSize)
	return NewRouter(cfg, Deps{Store: store, Intake: svc, Checks: checks}).Setup(), store
}

func TestUpload_AcceptsValidAndReportsInvalid(t *testing.T) {
	h, store := newTestServer(t, "", nil)
	body, ct := multipartBody(t,
		upload{"report.pdf", []byte("%PDF-1.4 data")},
		upload{"notes.txt", []byte("plain")},
		upload{"scan.png", []byte("\x89PNG data")},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp struct {
		ProcessedFiles int `json:"processed_files"`
		FailedFiles    int `json:"failed_files"`
		Files          []struct {
			DocID string `json:"doc_id"`
		} `json:"files"`
		Errors []struct {
			FileIndex  int `json:"file_index"`
			StatusCode int `json:"status_code"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ProcessedFiles)
	assert.Equal(t, 1, resp.FailedFiles)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].FileIndex)
	assert.Equal(t, http.StatusBadRequest, resp.Errors[0].StatusCode)

	docs, err := store.List(context.Background(), models.DocStatusPending, 10, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestUpload_AllRejected(t *testing.T) {
	h, _ := newTestServer(t, "", nil)
	body, ct := multipartBody(t, upload{"virus.exe", []byte("MZ")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_TooManyFiles(t *testing.T) {
	h, _ := newTestServer(t, "", nil)
	var files []upload
	for i := 0; i < 11; i++ {
		files = append(files, upload{"a.pdf", []byte("x")})
	}
	body, ct := multipartBody(t, files...)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocumentAndChunk(t *testing.T) {
	h, store := newTestServer(t, "", nil)
	doc := &models.Document{SourceLocation: "mem://uploads/x.pdf", ContentHash: "h", DeclaredType: models.DocTypePDF}
	require.NoError(t, store.Create(context.Background(), doc))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/v1/documents/" + doc.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.DocStatusPending, got.Status)

	assert.Equal(t, http.StatusNotFound, get("/api/v1/documents/"+doc.ID.String()+"/chunk").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/documents/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/documents/not-a-uuid").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/documents/?status=bogus").Code)

	_, err := store.ClaimPending(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, store.CompleteSuccess(context.Background(), doc.ID, "extracted text"))

	rec = get("/api/v1/documents/" + doc.ID.String() + "/chunk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "extracted text")
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	h, _ := newTestServer(t, "s3cret", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := auth.NewJWTMiddleware("s3cret").Sign(auth.Claims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body, ct := multipartBody(t, upload{"a.pdf", []byte("x")})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "viewers cannot upload")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestReadyz(t *testing.T) {
	h, _ := newTestServer(t, "", map[string]handlers.Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
