package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docoutline/internal/apperr"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/ingest"
	"github.com/dgallion1/docoutline/internal/models"
)

type fakeIngester struct {
	mu       sync.Mutex
	calls    int
	failures []error
	result   ingest.Result
}

func (f *fakeIngester) Ingest(_ context.Context, _ string, _ []byte) (*ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	res := f.result
	return &res, nil
}

func (f *fakeIngester) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(ing Ingester) *Worker {
	w := NewWorker(ing, discardLogger())
	w.backoff = func(int) time.Duration { return 0 }
	return w
}

func createdResult(id string) ingest.Result {
	return ingest.Result{
		Document:     models.Document{ID: id, ContentHash: "hash-" + id},
		Created:      true,
		SectionCount: 3,
		Warnings:     []doctree.Warning{},
	}
}

func TestWorker_Completed(t *testing.T) {
	ing := &fakeIngester{result: createdResult("d1")}
	job := NewJob("a.md", []byte("# A"))

	newTestWorker(ing).Process(context.Background(), job)

	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "d1", snap.DocID)
	assert.Equal(t, "hash-d1", snap.ContentHash)
	assert.Equal(t, 3, snap.Progress.Sections)
	assert.Equal(t, 1, snap.Progress.Attempts)
	assert.Nil(t, job.FileData(), "file bytes released after processing")
}

func TestWorker_DuplicateAndPartial(t *testing.T) {
	dup := createdResult("d1")
	dup.Created = false
	job := NewJob("a.md", []byte("# A"))
	newTestWorker(&fakeIngester{result: dup}).Process(context.Background(), job)
	assert.Equal(t, StatusDupSkipped, job.Snapshot().Status)

	partial := createdResult("d2")
	partial.Warnings = []doctree.Warning{{Code: doctree.WarnImageUnresolved}}
	job = NewJob("b.docx", []byte("x"))
	newTestWorker(&fakeIngester{result: partial}).Process(context.Background(), job)
	snap := job.Snapshot()
	assert.Equal(t, StatusPartial, snap.Status)
	assert.Len(t, snap.Progress.Warnings, 1)
}

func TestWorker_RetriesPersistenceFailures(t *testing.T) {
	ing := &fakeIngester{
		failures: []error{apperr.Persistence(errors.New("locked"), "could not store document")},
		result:   createdResult("d1"),
	}
	job := NewJob("a.md", []byte("# A"))

	newTestWorker(ing).Process(context.Background(), job)

	assert.Equal(t, 2, ing.Calls())
	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Progress.Attempts)
}

func TestWorker_GivesUpAfterMaxRetries(t *testing.T) {
	failures := make([]error, MaxRetries+1)
	for i := range failures {
		failures[i] = apperr.Persistence(errors.New("down"), "could not store document")
	}
	ing := &fakeIngester{failures: failures}
	job := NewJob("a.md", []byte("# A"))

	newTestWorker(ing).Process(context.Background(), job)

	assert.Equal(t, MaxRetries, ing.Calls())
	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Contains(t, snap.Progress.Errors[0], string(apperr.KindPersistenceFailure))
}

func TestWorker_NoRetryOnInvalidInput(t *testing.T) {
	ing := &fakeIngester{failures: []error{apperr.InvalidInput("empty file")}}
	job := NewJob("a.md", nil)

	newTestWorker(ing).Process(context.Background(), job)

	assert.Equal(t, 1, ing.Calls())
	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	require.Len(t, snap.Progress.Errors, 1)
	assert.Equal(t, "invalid_input: empty file", snap.Progress.Errors[0])
}

func TestWorker_CancelledDuringBackoff(t *testing.T) {
	ing := &fakeIngester{failures: []error{apperr.Persistence(errors.New("down"), "could not store document")}}
	w := NewWorker(ing, discardLogger())
	w.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := NewJob("a.md", []byte("# A"))
	w.Process(ctx, job)

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "cancelled", snap.Phase)
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := min(time.Duration(1<<uint(attempt))*time.Second, 30*time.Second)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2)
	}
}

func TestOrchestrator_ProcessesJobs(t *testing.T) {
	cfg := config.Config{WorkerCount: 2, MaxQueueSize: 10, JobTTL: time.Hour}
	ing := &fakeIngester{result: createdResult("d1")}
	o := NewOrchestrator(cfg, ing, discardLogger())
	o.Start(context.Background())
	t.Cleanup(o.Stop)

	jobs := []*Job{NewJob("a.md", []byte("a")), NewJob("b.md", []byte("b")), NewJob("c.md", []byte("c"))}
	for _, j := range jobs {
		require.NoError(t, o.Submit(j))
	}

	for _, j := range jobs {
		require.Eventually(t, func() bool {
			return o.GetJob(j.ID).Snapshot().Status.Terminal()
		}, 5*time.Second, 10*time.Millisecond)
		assert.Equal(t, StatusCompleted, j.Snapshot().Status)
	}
	assert.Equal(t, 3, ing.Calls())
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 0, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, &fakeIngester{}, discardLogger())

	require.NoError(t, o.Submit(NewJob("a.md", []byte("a"))))
	assert.Equal(t, 1, o.QueueDepth())

	overflow := NewJob("b.md", []byte("b"))
	require.Error(t, o.Submit(overflow))
	snap := o.GetJob(overflow.ID).Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "queue_full", snap.Phase)
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, &fakeIngester{}, discardLogger())
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	require.Error(t, o.Submit(NewJob("a.md", []byte("a"))))
}
