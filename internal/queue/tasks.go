package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikhilbhutani/docingest/internal/models"
)

const TypeDocumentParse = "document:parse"

// Job is the descriptor published for one document. It carries enough to
// fetch the object without a database read.
type Job struct {
	DocumentID     string         `json:"doc_id"`
	SourceLocation string         `json:"source_uri"`
	DeclaredType   models.DocType `json:"file_type"`
	ContentHash    string         `json:"file_hash"`
	// ClaimedAt is when the scheduler claimed the document; it tells apart
	// the jobs of successive claims of one document.
	ClaimedAt      *time.Time     `json:"claimed_at,omitempty"`
}

func JobFor(doc *models.Document) Job {
	return Job{
		DocumentID:     doc.ID.String(),
		SourceLocation: doc.SourceLocation,
		DeclaredType:   doc.DeclaredType,
		ContentHash:    doc.ContentHash,
		ClaimedAt:      doc.QueuedAt,
	}
}

// TaskID identifies the job of one claim. A redelivered job keeps its ID; a
// later claim of the same document gets a new one.
func (j Job) TaskID() string {
	if j.ClaimedAt == nil {
		return j.DocumentID
	}
	return fmt.Sprintf("%s:%d", j.DocumentID, j.ClaimedAt.UnixNano())
}

func (j Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return data, nil
}

func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	if j.DocumentID == "" {
		return Job{}, fmt.Errorf("unmarshal job: missing doc_id")
	}
	return j, nil
}
