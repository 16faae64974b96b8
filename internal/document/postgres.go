package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docingest/internal/database"
	"github.com/nikhilbhutani/docingest/internal/models"
)

const documentColumns = `id, source_location, content_hash, size_bytes, declared_type, status, retry_count, error_message, queued_at, created_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc    models.Document
		errMsg *string
	)
	err := row.Scan(&doc.ID, &doc.SourceLocation, &doc.ContentHash, &doc.SizeBytes, &doc.DeclaredType,
		&doc.Status, &doc.RetryCount, &errMsg, &doc.QueuedAt, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		doc.ErrorMessage = *errMsg
	}
	return &doc, nil
}

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, source_location, content_hash, size_bytes, declared_type, status, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 0)
		 RETURNING created_at`,
		doc.ID, doc.SourceLocation, doc.ContentHash, doc.SizeBytes, doc.DeclaredType, models.DocStatusPending,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	doc.Status = models.DocStatusPending
	doc.RetryCount = 0
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) List(ctx context.Context, status string, limit, offset int) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]models.Document, error) {
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) ChunkFor(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	var c models.Chunk
	err := s.db.QueryRow(ctx,
		`SELECT id, document_id, page_number, start_token, end_token, text, created_at
		 FROM chunks WHERE document_id = $1`, id,
	).Scan(&c.ID, &c.DocumentID, &c.PageNumber, &c.StartToken, &c.EndToken, &c.Text, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return &c, nil
}

// ClaimPending uses SKIP LOCKED so concurrent schedulers never claim the same row.
func (s *PostgresStore) ClaimPending(ctx context.Context, limit int) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE documents SET status = $1, queued_at = now()
		 WHERE id IN (
			SELECT id FROM documents
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+documentColumns,
		models.DocStatusQueued, models.DocStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, fmt.Errorf("claim pending documents: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (s *PostgresStore) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, queued_at = NULL WHERE id = $2 AND status = $3`,
		models.DocStatusPending, id, models.DocStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, queued_at = NULL
		 WHERE status = $2 AND queued_at < now() - make_interval(secs => $3)`,
		models.DocStatusPending, models.DocStatusQueued, olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) MarkScanned(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET declared_type = $1 WHERE id = $2 AND status = $3`,
		models.DocTypeScanned, id, models.DocStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("mark scanned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleOutcome
	}
	return nil
}

// CompleteSuccess flips the status and inserts the chunk in one transaction.
// The chunk insert is keyed on document_id so a duplicate is dropped.
func (s *PostgresStore) CompleteSuccess(ctx context.Context, id uuid.UUID, text string) error {
	return database.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE documents SET status = $1, error_message = NULL WHERE id = $2 AND status = $3`,
			models.DocStatusSuccess, id, models.DocStatusQueued,
		)
		if err != nil {
			return fmt.Errorf("mark success: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleOutcome
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, text) VALUES ($1, $2, $3)
			 ON CONFLICT (document_id) DO NOTHING`,
			uuid.New(), id, ChunkText(text),
		)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, retry_count = retry_count + 1, queued_at = NULL
		 WHERE id = $2 AND status = $3 AND retry_count = $4`,
		models.DocStatusPending, id, models.DocStatusQueued, retryCount,
	)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleOutcome
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, msg string, countAttempt bool) error {
	increment := 0
	if countAttempt {
		increment = 1
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2, retry_count = retry_count + $3
		 WHERE id = $4 AND status = $5`,
		models.DocStatusFailed, msg, increment, id, models.DocStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleOutcome
	}
	return nil
}
