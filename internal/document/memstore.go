package document

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docingest/internal/models"
)

// MemoryStore is an in-process Store with the same conditional-write
// semantics as PostgresStore. Used by tests and local dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]*models.Document
	chunks map[uuid.UUID]*models.Chunk
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[uuid.UUID]*models.Document),
		chunks: make(map[uuid.UUID]*models.Chunk),
		now:    time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	doc.Status = models.DocStatusPending
	doc.RetryCount = 0
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, status string, limit, offset int) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Document
	for _, d := range s.sorted() {
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	// newest first, as PostgresStore.List
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ChunkFor(_ context.Context, id uuid.UUID) (*models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ChunkCount returns how many chunks reference id.
func (s *MemoryStore) ChunkCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[id]; ok {
		return 1
	}
	return 0
}

func (s *MemoryStore) sorted() []*models.Document {
	docs := make([]*models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs
}

func (s *MemoryStore) ClaimPending(_ context.Context, limit int) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []models.Document
	now := s.now()
	for _, d := range s.sorted() {
		if len(claimed) >= limit {
			break
		}
		if d.Status != models.DocStatusPending {
			continue
		}
		d.Status = models.DocStatusQueued
		d.QueuedAt = &now
		claimed = append(claimed, *d)
	}
	return claimed, nil
}

func (s *MemoryStore) ReleaseClaim(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.docs[id]; ok && d.Status == models.DocStatusQueued {
		d.Status = models.DocStatusPending
		d.QueuedAt = nil
	}
	return nil
}

func (s *MemoryStore) ReclaimStale(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var n int64
	for _, d := range s.docs {
		if d.Status == models.DocStatusQueued && d.QueuedAt != nil && d.QueuedAt.Before(cutoff) {
			d.Status = models.DocStatusPending
			d.QueuedAt = nil
			n++
		}
	}
	return n, nil
}

// queued returns the document if it is still awaiting an outcome. Callers hold mu.
func (s *MemoryStore) queued(id uuid.UUID) (*models.Document, error) {
	d, ok := s.docs[id]
	if !ok || d.Status != models.DocStatusQueued {
		return nil, ErrStaleOutcome
	}
	return d, nil
}

func (s *MemoryStore) MarkScanned(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.queued(id)
	if err != nil {
		return err
	}
	d.DeclaredType = models.DocTypeScanned
	return nil
}

func (s *MemoryStore) CompleteSuccess(_ context.Context, id uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.queued(id)
	if err != nil {
		return err
	}
	d.Status = models.DocStatusSuccess
	d.ErrorMessage = ""
	if _, exists := s.chunks[id]; !exists {
		s.chunks[id] = &models.Chunk{ID: uuid.New(), DocumentID: id, Text: ChunkText(text), CreatedAt: s.now()}
	}
	return nil
}

func (s *MemoryStore) MarkRetry(_ context.Context, id uuid.UUID, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.queued(id)
	if err != nil {
		return err
	}
	if d.RetryCount != retryCount {
		return ErrStaleOutcome
	}
	d.RetryCount++
	d.Status = models.DocStatusPending
	d.QueuedAt = nil
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, msg string, countAttempt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.queued(id)
	if err != nil {
		return err
	}
	d.Status = models.DocStatusFailed
	d.ErrorMessage = msg
	if countAttempt {
		d.RetryCount++
	}
	return nil
}
