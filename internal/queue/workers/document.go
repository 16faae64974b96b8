package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/extract"
	"github.com/nikhilbhutani/docingest/internal/integrity"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/internal/observability"
	"github.com/nikhilbhutani/docingest/internal/queue"
	"github.com/nikhilbhutani/docingest/internal/retry"
	"github.com/nikhilbhutani/docingest/internal/storage"
)

const (
	msgIntegrityFailed  = "integrity check failed"
	msgExtractionFailed = "extraction failed after retries"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeFailed  Outcome = "failed"
	// OutcomeSkipped means the job no longer matched a queued document,
	// typically a redelivery after another worker finished it.
	OutcomeSkipped Outcome = "skipped"
)

// Extractor is the part of extract.Engine the worker needs.
type Extractor interface {
	Extract(ctx context.Context, data []byte, declared models.DocType) extract.Result
	IsScanned(ctx context.Context, data []byte, pages int) bool
}

// Metrics is the part of observability.Metrics the worker records to.
type Metrics interface {
	ParseSucceeded(fileType string)
	ObserveDuration(fileType string, d time.Duration)
	Outcome(outcome string)
}

type Options struct {
	MaxRetries     int
	ClassifyPages  int
	ReceiveTimeout time.Duration
	FetchTimeout   time.Duration
	ClassifyTime   time.Duration
	DBTimeout      time.Duration
}

type DocumentWorker struct {
	name       string
	store      document.Store
	objects    storage.Storage
	broker     queue.Broker
	engine     Extractor
	policy     retry.Policy
	quarantine *integrity.Quarantiner
	metrics    Metrics
	reporter   observability.Reporter
	opts       Options
}

func NewDocumentWorker(
	name string,
	store document.Store,
	objects storage.Storage,
	broker queue.Broker,
	engine Extractor,
	policy retry.Policy,
	quarantine *integrity.Quarantiner,
	metrics Metrics,
	reporter observability.Reporter,
	opts Options,
) *DocumentWorker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if reporter == nil {
		reporter = observability.NopReporter{}
	}
	return &DocumentWorker{
		name:       name,
		store:      store,
		objects:    objects,
		broker:     broker,
		engine:     engine,
		policy:     policy,
		quarantine: quarantine,
		metrics:    metrics,
		reporter:   reporter,
		opts:       opts,
	}
}

// Run pulls jobs until ctx is cancelled or the broker closes. A job that is
// in progress when ctx ends still runs to its outcome.
func (w *DocumentWorker) Run(ctx context.Context) error {
	slog.Info("worker started", "worker", w.name)
	defer slog.Info("worker stopped", "worker", w.name)

	for ctx.Err() == nil {
		d, err := w.broker.Receive(ctx, w.opts.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			slog.Error("receive job failed", "worker", w.name, "error", err)
			sleep(ctx, time.Second)
			continue
		}
		if d == nil {
			continue
		}

		jobCtx := context.WithoutCancel(ctx)
		w.Process(jobCtx, d.Job)
		if err := d.Ack(jobCtx); err != nil {
			slog.Error("ack job failed", "worker", w.name, "doc_id", d.Job.DocumentID, "error", err)
		}
	}
	return nil
}

// Process drives one job to an outcome. It never returns an error: every
// failure ends up on the document record.
func (w *DocumentWorker) Process(ctx context.Context, job queue.Job) (outcome Outcome) {
	start := time.Now()
	fileType := string(job.DeclaredType)
	log := slog.With("worker", w.name, "doc_id", job.DocumentID)

	id, err := uuid.Parse(job.DocumentID)
	if err != nil {
		log.Error("dropping job with invalid document id", "error", err)
		return OutcomeSkipped
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("job panicked", "error", err, "stack", string(debug.Stack()))
			outcome = w.unexpected(ctx, id, fileType, err)
		}
		w.metrics.Outcome(string(outcome))
		w.metrics.ObserveDuration(fileType, time.Since(start))
		log.Info("job finished",
			"outcome", outcome,
			"file_type", fileType,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	doc, err := w.load(ctx, id)
	if errors.Is(err, document.ErrNotFound) {
		log.Warn("document not found, dropping job")
		return OutcomeSkipped
	}
	if err != nil {
		return w.unexpected(ctx, id, fileType, err)
	}
	if doc.Status != models.DocStatusQueued {
		log.Info("document not queued, skipping", "status", doc.Status)
		return OutcomeSkipped
	}
	fileType = string(doc.DeclaredType)

	outcome, err = w.run(ctx, doc, &fileType)
	var (
		fetchErr     *FetchError
		integrityErr *IntegrityError
	)
	switch {
	case err == nil:
		return outcome
	case errors.Is(err, document.ErrStaleOutcome):
		log.Info("outcome already recorded elsewhere, skipping")
		return OutcomeSkipped
	case errors.As(err, &fetchErr):
		log.Warn("fetch failed", "error", err)
		return w.fail(ctx, id, err.Error(), false)
	case errors.As(err, &integrityErr):
		log.Warn("integrity check failed", "error", err)
		w.quarantineObject(ctx, id, integrityErr.Source)
		return w.fail(ctx, id, msgIntegrityFailed, false)
	default:
		return w.unexpected(ctx, id, fileType, err)
	}
}

func (w *DocumentWorker) run(ctx context.Context, doc *models.Document, fileType *string) (Outcome, error) {
	loc, err := storage.ParseLocation(doc.SourceLocation)
	if err != nil {
		return "", &FetchError{Err: err}
	}

	data, err := w.fetch(ctx, loc)
	if err != nil {
		return "", &FetchError{Err: err}
	}

	if err := integrity.Verify(data, doc.ContentHash); err != nil {
		return "", &IntegrityError{Source: loc, Err: err}
	}

	declared := doc.DeclaredType
	if declared == models.DocTypePDF && w.isScanned(ctx, data) {
		if err := w.withDB(ctx, func(ctx context.Context) error {
			return w.store.MarkScanned(ctx, doc.ID)
		}); err != nil {
			return "", fmt.Errorf("mark scanned: %w", err)
		}
		declared = models.DocTypeScanned
		*fileType = string(declared)
	}

	res := w.engine.Extract(ctx, data, declared)

	switch w.policy.Decide(res.Text, doc.RetryCount, w.opts.MaxRetries) {
	case retry.Accept:
		if err := w.withDB(ctx, func(ctx context.Context) error {
			return w.store.CompleteSuccess(ctx, doc.ID, res.Text)
		}); err != nil {
			return "", fmt.Errorf("record success: %w", err)
		}
		w.metrics.ParseSucceeded(*fileType)
		return OutcomeSuccess, nil

	case retry.Retry:
		if err := w.withDB(ctx, func(ctx context.Context) error {
			return w.store.MarkRetry(ctx, doc.ID, doc.RetryCount)
		}); err != nil {
			return "", fmt.Errorf("record retry: %w", err)
		}
		slog.Info("extraction insufficient, will retry",
			"doc_id", doc.ID,
			"retry_count", doc.RetryCount+1,
			"backend", res.Backend,
		)
		return OutcomeRetry, nil

	default:
		w.quarantineObject(ctx, doc.ID, loc)
		if err := w.withDB(ctx, func(ctx context.Context) error {
			return w.store.MarkFailed(ctx, doc.ID, msgExtractionFailed, true)
		}); err != nil {
			return "", fmt.Errorf("record failure: %w", err)
		}
		return OutcomeFailed, nil
	}
}

func (w *DocumentWorker) load(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc *models.Document
	err := w.withDB(ctx, func(ctx context.Context) error {
		var err error
		doc, err = w.store.Get(ctx, id)
		return err
	})
	return doc, err
}

func (w *DocumentWorker) fetch(ctx context.Context, loc storage.Location) ([]byte, error) {
	if w.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.FetchTimeout)
		defer cancel()
	}
	return w.objects.Get(ctx, loc)
}

func (w *DocumentWorker) isScanned(ctx context.Context, data []byte) bool {
	if w.opts.ClassifyTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.ClassifyTime)
		defer cancel()
	}
	return w.engine.IsScanned(ctx, data, w.opts.ClassifyPages)
}

// quarantineObject is best effort; the failed status is written regardless.
func (w *DocumentWorker) quarantineObject(ctx context.Context, id uuid.UUID, src storage.Location) {
	if w.quarantine == nil {
		return
	}
	_ = w.quarantine.Quarantine(ctx, id, src)
}

func (w *DocumentWorker) fail(ctx context.Context, id uuid.UUID, msg string, countAttempt bool) Outcome {
	err := w.withDB(ctx, func(ctx context.Context) error {
		return w.store.MarkFailed(ctx, id, msg, countAttempt)
	})
	if errors.Is(err, document.ErrStaleOutcome) {
		return OutcomeSkipped
	}
	if err != nil {
		slog.Error("record failure failed", "doc_id", id, "error", err)
	}
	return OutcomeFailed
}

func (w *DocumentWorker) unexpected(ctx context.Context, id uuid.UUID, fileType string, err error) Outcome {
	slog.Error("document processing failed", "doc_id", id, "error", err)
	w.reporter.Report(ctx, err, map[string]string{
		"doc_id":    id.String(),
		"file_type": fileType,
		"worker":    w.name,
	})
	return w.fail(ctx, id, err.Error(), false)
}

func (w *DocumentWorker) withDB(ctx context.Context, fn func(context.Context) error) error {
	if w.opts.DBTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.DBTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopMetrics struct{}

func (nopMetrics) ParseSucceeded(string)                 {}
func (nopMetrics) ObserveDuration(string, time.Duration) {}
func (nopMetrics) Outcome(string)                        {}
