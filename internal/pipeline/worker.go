package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docoutline/internal/apperr"
)

// Worker processes a single document job.
type Worker struct {
	ingester Ingester
	log      *slog.Logger
	backoff  func(attempt int) time.Duration
}

func NewWorker(ing Ingester, log *slog.Logger) *Worker {
	return &Worker{
		ingester: ing,
		log:      log,
		backoff:  Backoff,
	}
}

// Process ingests the job's file, retrying persistence failures.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	job.SetStatus(StatusParsing, "parsing")
	data := job.FileData()

	var lastErr error
	for attempt := range MaxRetries {
		job.IncrAttempts()
		res, err := w.ingester.Ingest(ctx, job.Filename, data)
		if err == nil {
			job.SetFileData(nil)
			job.SetResult(res.Document.ID, res.Document.ContentHash, res.SectionCount, res.Warnings)
			switch {
			case !res.Created:
				log.Info("duplicate document, skipping", "existing_doc_id", res.Document.ID)
				job.SetStatus(StatusDupSkipped, "dedup")
			case res.Partial():
				log.Info("document ingested with warnings", "doc_id", res.Document.ID, "warnings", len(res.Warnings))
				job.SetStatus(StatusPartial, "done")
			default:
				log.Info("document ingested", "doc_id", res.Document.ID, "sections", res.SectionCount)
				job.SetStatus(StatusCompleted, "done")
			}
			return
		}

		lastErr = err
		if !IsRetryable(err) || attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable ingest error", "attempt", attempt, "error", err)
		job.SetStatus(StatusRetrying, fmt.Sprintf("attempt %d failed", attempt+1))
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
			job.SetFileData(nil)
			job.AddError(lastErr.Error())
			job.SetStatus(StatusFailed, "cancelled")
			return
		}
	}

	log.Error("ingest failed", "kind", apperr.KindOf(lastErr), "error", lastErr)
	job.SetFileData(nil)
	job.AddError(fmt.Sprintf("%s: %s", apperr.KindOf(lastErr), apperr.MessageOf(lastErr)))
	job.SetStatus(StatusFailed, "ingest")
}
