package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docingest/internal/config"
	"github.com/nikhilbhutani/docingest/internal/document"
	"github.com/nikhilbhutani/docingest/internal/extract"
	"github.com/nikhilbhutani/docingest/internal/integrity"
	"github.com/nikhilbhutani/docingest/internal/models"
	"github.com/nikhilbhutani/docingest/internal/queue"
	"github.com/nikhilbhutani/docingest/internal/retry"
	"github.com/nikhilbhutani/docingest/internal/scheduler"
	"github.com/nikhilbhutani/docingest/internal/storage"
	"github.com/nikhilbhutani/docingest/internal/testutil"
)

const longText = "This agreement is entered into by and between the parties listed below."

type staticBackend struct {
	name  string
	text  string
	calls int
	mu    sync.Mutex
}

func (b *staticBackend) Name() string { return b.name }

func (b *staticBackend) Submit(context.Context, []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.text, nil
}

func (b *staticBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type panicExtractor struct{}

func (panicExtractor) Extract(context.Context, []byte, models.DocType) extract.Result {
	panic("parser exploded")
}

func (panicExtractor) IsScanned(context.Context, []byte, int) bool { return false }

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(_ context.Context, err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Close() {}

type countingMetrics struct {
	mu       sync.Mutex
	success  map[string]int
	outcomes map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{success: map[string]int{}, outcomes: map[string]int{}}
}

func (m *countingMetrics) ParseSucceeded(ft string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.success[ft]++
}

func (m *countingMetrics) ObserveDuration(string, time.Duration) {}

func (m *countingMetrics) Outcome(o string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[o]++
}

type harness struct {
	store    *document.MemoryStore
	objects  *storage.MemoryStorage
	broker   *queue.MemoryBroker
	text     *staticBackend
	ocr      *staticBackend
	reporter *recordingReporter
	metrics  *countingMetrics
	worker   *DocumentWorker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    document.NewMemoryStore(),
		objects:  storage.NewMemoryStorage(),
		broker:   queue.NewMemoryBroker(16),
		text:     &staticBackend{name: "remote-text"},
		ocr:      &staticBackend{name: "remote-ocr"},
		reporter: &recordingReporter{},
		metrics:  newCountingMetrics(),
	}
	engine := extract.NewEngine(
		extract.NewChain("text", extract.Stage{Backend: extract.LocalPDF{}}, extract.Stage{Backend: h.text}),
		extract.NewChain("ocr", extract.Stage{Backend: h.ocr}),
	)
	h.worker = h.newWorker(engine)
	return h
}

func (h *harness) newWorker(engine Extractor) *DocumentWorker {
	q := integrity.NewQuarantiner(h.objects, "quarantine", 1)
	return NewDocumentWorker("test", h.store, h.objects, h.broker, engine, retry.NewPolicy(40), q,
		h.metrics, h.reporter, Options{
			MaxRetries:     3,
			ClassifyPages:  1,
			ReceiveTimeout: 10 * time.Millisecond,
			FetchTimeout:   time.Second,
			DBTimeout:      time.Second,
		})
}

// upload stores data and inserts a pending document for it.
func (h *harness) upload(t *testing.T, data []byte, declared models.DocType, hash string) *models.Document {
	t.Helper()
	id := uuid.New()
	loc := storage.Location{Scheme: "mem", Bucket: "uploads", Key: id.String() + ".pdf"}
	require.NoError(t, h.objects.Put(context.Background(), loc, data, "application/pdf"))
	if hash == "" {
		hash = integrity.Hash(data)
	}
	doc := &models.Document{
		ID:             id,
		SourceLocation: loc.String(),
		ContentHash:    hash,
		SizeBytes:      int64(len(data)),
		DeclaredType:   declared,
	}
	require.NoError(t, h.store.Create(context.Background(), doc))
	return doc
}

// claim moves pending documents to queued and returns the published jobs.
func (h *harness) claim(t *testing.T) []queue.Job {
	t.Helper()
	docs, err := h.store.ClaimPending(context.Background(), 100)
	require.NoError(t, err)
	jobs := make([]queue.Job, len(docs))
	for i := range docs {
		jobs[i] = queue.JobFor(&docs[i])
	}
	return jobs
}

func (h *harness) get(t *testing.T, id uuid.UUID) *models.Document {
	t.Helper()
	d, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

func quarantineLoc(id uuid.UUID) storage.Location {
	return storage.Location{Scheme: "mem", Bucket: "quarantine", Key: id.String() + ".pdf"}
}

func TestProcess_TextPDFSucceeds(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, "")

	jobs := h.claim(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, OutcomeSuccess, h.worker.Process(context.Background(), jobs[0]))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.DocStatusSuccess, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.ErrorMessage)

	chunk, err := h.store.ChunkFor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Contains(t, chunk.Text, longText)
	assert.Equal(t, 1, h.store.ChunkCount(doc.ID))

	assert.Equal(t, 0, h.text.Calls(), "fallback must not run when local extraction succeeds")
	assert.Equal(t, 1, h.metrics.success["pdf"])
}

func TestProcess_ScannedAlwaysEmptyEndsInQuarantine(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(""), models.DocTypePDF, "")
	sched := scheduler.New(h.store, h.broker, nil, config.SchedulerConfig{BatchSize: 10})

	var outcomes []Outcome
	for i := 0; i < 5; i++ {
		res, err := sched.RunOnce(context.Background())
		require.NoError(t, err)
		if res.Published == 0 {
			break
		}
		d, err := h.broker.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)
		outcomes = append(outcomes, h.worker.Process(context.Background(), d.Job))
		require.NoError(t, d.Ack(context.Background()))
	}

	assert.Equal(t, []Outcome{OutcomeRetry, OutcomeRetry, OutcomeFailed}, outcomes)

	got := h.get(t, doc.ID)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, models.DocTypeScanned, got.DeclaredType)
	assert.Equal(t, msgExtractionFailed, got.ErrorMessage)
	assert.True(t, h.objects.Has(quarantineLoc(doc.ID)))
	assert.Equal(t, 0, h.store.ChunkCount(doc.ID))
	assert.Equal(t, 3, h.ocr.Calls())
}

func TestProcess_ShortTextRetries(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF("tiny"), models.DocTypePDF, "")

	jobs := h.claim(t)
	assert.Equal(t, OutcomeRetry, h.worker.Process(context.Background(), jobs[0]))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.DocStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	// "tiny" is non-empty, so the conversion backend is never consulted
	assert.Equal(t, 0, h.text.Calls())
}

func TestProcess_IntegrityMismatch(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, integrity.Hash([]byte("something else")))

	jobs := h.claim(t)
	assert.Equal(t, OutcomeFailed, h.worker.Process(context.Background(), jobs[0]))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Equal(t, msgIntegrityFailed, got.ErrorMessage)
	assert.Equal(t, 0, got.RetryCount)
	assert.True(t, h.objects.Has(quarantineLoc(doc.ID)))
	assert.Equal(t, 0, h.text.Calls())
	assert.Equal(t, 0, h.store.ChunkCount(doc.ID))
}

func TestProcess_IntegrityQuarantineCopyFailureStillFails(t *testing.T) {
	h := newHarness(t)
	h.objects.FailCopy = errors.New("quarantine bucket unavailable")
	doc := h.upload(t, []byte("payload"), models.DocTypeImage, integrity.Hash([]byte("other")))

	jobs := h.claim(t)
	assert.Equal(t, OutcomeFailed, h.worker.Process(context.Background(), jobs[0]))
	assert.Equal(t, models.DocStatusFailed, h.get(t, doc.ID).Status)
}

func TestProcess_FetchErrorFailsWithoutQuarantine(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, "")
	h.objects.FailGet = errors.New("connection reset")

	jobs := h.claim(t)
	assert.Equal(t, OutcomeFailed, h.worker.Process(context.Background(), jobs[0]))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.ErrorMessage, "fetch failed"))
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, 0, h.objects.CopyCalls())
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, "")

	jobs := h.claim(t)
	assert.Equal(t, OutcomeSuccess, h.worker.Process(context.Background(), jobs[0]))
	assert.Equal(t, OutcomeSkipped, h.worker.Process(context.Background(), jobs[0]))

	assert.Equal(t, models.DocStatusSuccess, h.get(t, doc.ID).Status)
	assert.Equal(t, 1, h.store.ChunkCount(doc.ID))
}

func TestProcess_ConcurrentDuplicatesWriteOneChunk(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, "")
	job := h.claim(t)[0]

	var wg sync.WaitGroup
	results := make([]Outcome, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.worker.Process(context.Background(), job)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, o := range results {
		if o == OutcomeSuccess {
			successes++
		} else {
			assert.Equal(t, OutcomeSkipped, o)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, h.store.ChunkCount(doc.ID))
}

func TestProcess_TerminalDocumentsStayTerminal(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, integrity.Hash([]byte("x")))
	job := h.claim(t)[0]
	require.Equal(t, OutcomeFailed, h.worker.Process(context.Background(), job))

	// a replayed job must not revive a failed document
	assert.Equal(t, OutcomeSkipped, h.worker.Process(context.Background(), job))
	assert.Equal(t, models.DocStatusFailed, h.get(t, doc.ID).Status)
}

func TestProcess_PanicIsRecorded(t *testing.T) {
	h := newHarness(t)
	w := h.newWorker(panicExtractor{})
	doc := h.upload(t, []byte("image bytes"), models.DocTypeImage, "")

	jobs := h.claim(t)
	assert.Equal(t, OutcomeFailed, w.Process(context.Background(), jobs[0]))

	got := h.get(t, doc.ID)
	assert.Equal(t, models.DocStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "parser exploded")
	require.Len(t, h.reporter.errs, 1)
}

func TestProcess_UnknownDocumentSkipped(t *testing.T) {
	h := newHarness(t)
	job := queue.Job{DocumentID: uuid.NewString(), DeclaredType: models.DocTypePDF}
	assert.Equal(t, OutcomeSkipped, h.worker.Process(context.Background(), job))

	job.DocumentID = "not-a-uuid"
	assert.Equal(t, OutcomeSkipped, h.worker.Process(context.Background(), job))
}

func TestProcess_ImageGoesThroughOCR(t *testing.T) {
	h := newHarness(t)
	h.ocr.text = longText
	doc := h.upload(t, []byte("png bytes"), models.DocTypeImage, "")

	jobs := h.claim(t)
	assert.Equal(t, OutcomeSuccess, h.worker.Process(context.Background(), jobs[0]))
	assert.Equal(t, models.DocTypeImage, h.get(t, doc.ID).DeclaredType)
	assert.Equal(t, 1, h.metrics.success["image"])
}

func TestRun_ProcessesAndAcks(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, testutil.BuildPDF(longText), models.DocTypePDF, "")
	for _, j := range h.claim(t) {
		require.NoError(t, h.broker.Publish(context.Background(), j))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	require.Eventually(t, func() bool { return h.broker.Acked() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, models.DocStatusSuccess, h.get(t, doc.ID).Status)
}

func TestRun_StopsWhenBrokerCloses(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.broker.Close())
	assert.NoError(t, h.worker.Run(context.Background()))
}
