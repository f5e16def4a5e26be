// Package indexer rebuilds a job's Snapshot rows from its discovered
// WARC files (spec §4.G): idempotent per job (old rows are cleared and
// replaced rather than merged), with per-record isolation so one
// malformed capture never aborts the whole job.
package indexer

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"healtharchive/internal/apperrors"
	"healtharchive/internal/extract"
	"healtharchive/internal/model"
	"healtharchive/internal/safety"
	"healtharchive/internal/search"
	"healtharchive/internal/store"
	"healtharchive/internal/warcstore"
)

// eligibleStatuses are the job states index_job may run against (spec
// §4.G step 1): a job must have crawled successfully at least once,
// whether this is the first indexing pass or a re-index.
var eligibleStatuses = map[model.JobStatus]struct{}{
	model.JobCompleted:   {},
	model.JobIndexFailed: {},
	model.JobIndexed:     {},
}

// Indexer rebuilds snapshots for a job.
type Indexer struct {
	Store  *store.Store
	Logger zerolog.Logger
}

// New builds an Indexer bound to s.
func New(s *store.Store, logger zerolog.Logger) *Indexer {
	return &Indexer{Store: s, Logger: logger}
}

// IndexJob runs the full sequence spec §4.G describes for jobID.
func (ix *Indexer) IndexJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := ix.Store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if _, ok := eligibleStatuses[job.Status]; !ok {
		return apperrors.Validationf("job %s has status %s, not eligible for indexing", jobID, job.Status)
	}

	warcs, err := warcstore.Discover(job.OutputDir, true)
	if err != nil {
		if safety.IsStaleMountError(err) {
			// "leave status unchanged or return" per spec §4.G step 2.
			return apperrors.StorageUnavailable(err)
		}
		return fmt.Errorf("discover warcs for job %s: %w", jobID, err)
	}

	if err := ix.Store.UpdateWARCFileCount(ctx, jobID, len(warcs)); err != nil {
		return fmt.Errorf("record warc file count for job %s: %w", jobID, err)
	}

	if len(warcs) == 0 {
		if err := ix.Store.SetIndexFailed(ctx, jobID); err != nil {
			return fmt.Errorf("mark job %s index_failed (no warcs): %w", jobID, err)
		}
		return nil
	}

	if err := ix.Store.DeleteSnapshotsForJob(ctx, jobID); err != nil {
		return fmt.Errorf("clear prior snapshots for job %s: %w", jobID, err)
	}

	if err := ix.Store.SetIndexingStatus(ctx, jobID, len(warcs)); err != nil {
		return fmt.Errorf("transition job %s to indexing: %w", jobID, err)
	}

	n, runErr := ix.indexWARCs(ctx, job, warcs)
	if runErr != nil {
		ix.Logger.Error().Err(runErr).Str("job_id", jobID.String()).Msg("indexing job failed unexpectedly")
		if setErr := ix.Store.SetIndexFailed(ctx, jobID); setErr != nil {
			return fmt.Errorf("mark job %s index_failed after error: %w", jobID, setErr)
		}
		return nil
	}

	if err := ix.Store.CompleteIndexing(ctx, jobID, n); err != nil {
		return fmt.Errorf("complete indexing for job %s: %w", jobID, err)
	}
	return nil
}

// indexWARCs iterates every discovered WARC's HTML response records,
// extracting and batching a Snapshot per record. A per-record panic is
// logged and the record skipped; an extraction warning is logged and the
// record is still indexed. Neither aborts the job.
func (ix *Indexer) indexWARCs(ctx context.Context, job model.ArchiveJob, warcs []string) (int, error) {
	batch := ix.Store.NewSnapshotBatch(ctx)

	for _, path := range warcs {
		if err := ix.indexOneWARC(ctx, job, path, batch); err != nil {
			if safety.IsStaleMountError(err) {
				return batch.Total(), apperrors.StorageUnavailable(err)
			}
			return batch.Total(), err
		}
	}

	if err := batch.Flush(); err != nil {
		return batch.Total(), err
	}
	return batch.Total(), nil
}

func (ix *Indexer) indexOneWARC(ctx context.Context, job model.ArchiveJob, path string, batch *store.SnapshotBatch) error {
	stream, err := warcstore.OpenRecordStream(path)
	if err != nil {
		return fmt.Errorf("open warc %s: %w", path, err)
	}
	defer stream.Close()

	for stream.Next() {
		rec := stream.Record()
		snap, ok := ix.buildSnapshot(job, rec)
		if !ok {
			continue
		}
		if err := batch.Add(snap); err != nil {
			return fmt.Errorf("add snapshot from %s: %w", path, err)
		}
	}
	if err := stream.Err(); err != nil {
		ix.Logger.Warn().Err(err).Str("warc", path).Msg("warc record stream ended with error; continuing with records read so far")
	}
	return nil
}

// buildSnapshot extracts record into a Snapshot row. It never fails
// the job: an extraction warning is logged and the row is still returned
// with the fields extraction produced; a panic during extraction is
// logged and the record is skipped (ok is false)
// (spec §4.G step 6 "log and continue on per-record exceptions").
func (ix *Indexer) buildSnapshot(job model.ArchiveJob, rec warcstore.HTMLRecord) (model.Snapshot, bool) {
	defer func() {
		if r := recover(); r != nil {
			ix.Logger.Warn().Str("url", rec.URL).Str("job_id", job.ID.String()).
				Msgf("panic extracting record, skipping: %v", r)
		}
	}()

	body := toValidUTF8(rec.Body)
	result := extract.Extract(body, rec.Headers)
	if result.Warning != nil {
		ix.Logger.Warn().Err(result.Warning).Str("url", rec.URL).Msg("extraction warning for record")
	}

	captureTS := rec.CaptureTimestamp
	if captureTS.IsZero() {
		captureTS = time.Now().UTC()
	}

	var statusCode *int
	if rec.StatusCode != 0 {
		code := rec.StatusCode
		statusCode = &code
	}

	snap := model.Snapshot{
		ID:                 uuid.New(),
		JobID:              job.ID,
		SourceID:           job.SourceID,
		URL:                rec.URL,
		NormalizedURLGroup: search.NormalizeURL(rec.URL),
		CaptureTimestamp:   captureTS,
		MIMEType:           "text/html",
		StatusCode:         statusCode,
		Title:              result.Title,
		Snippet:            result.Snippet,
		Language:           result.Language,
		ContentHash:        result.ContentHash,
		IsArchived:         result.IsArchived,
		ContentText:        result.ContentText,
		WARCPath:           rec.WARCPath,
		WARCRecordID:       rec.RecordID,
	}
	return snap, true
}

// toValidUTF8 decodes body leniently, substituting the Unicode
// replacement character for invalid byte sequences (spec §4.G step 6
// "decode body as UTF-8 with replacement").
func toValidUTF8(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); {
		r, size := utf8.DecodeRune(body[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, []byte(string(utf8.RuneError))...)
			i++
			continue
		}
		out = append(out, body[i:i+size]...)
		i += size
	}
	return out
}
