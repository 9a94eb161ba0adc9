package buzz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Batch item outcomes reported to Metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
)

// Failure describes one video that produced no record.
type Failure struct {
	VideoID  string
	Category FailureCategory
	Err      error
}

// BatchResult summarises a batch run. Records in Succeeded were computed by
// this run; Cached holds the fresh records behind Skipped, in the same order.
//
// Requested counts the distinct ids handed to the run. Attempted counts the
// items that started; items a cancellation kept from starting appear only in
// Failed, as FailureCanceled.
type BatchResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Requested  int
	Attempted  int
	Succeeded  []Record
	Skipped    []string
	Cached     []Record
	Failed     []Failure
}

// Records returns computed and cached records together.
func (r *BatchResult) Records() []Record {
	out := make([]Record, 0, len(r.Succeeded)+len(r.Cached))
	out = append(out, r.Succeeded...)
	return append(out, r.Cached...)
}

// Err returns a *BatchError when any item failed, nil otherwise.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	be := &BatchError{
		RunID:      r.RunID,
		Requested:  r.Requested,
		Attempted:  r.Attempted,
		Succeeded:  len(r.Succeeded),
		Skipped:    len(r.Skipped),
		Failed:     len(r.Failed),
		ByCategory: make(map[FailureCategory]int),
	}
	for _, f := range r.Failed {
		be.ByCategory[f.Category]++
		be.Errs = append(be.Errs, fmt.Errorf("video %s: %w", f.VideoID, f.Err))
	}
	return be
}

// RunBatch scores videoIDs with at most the configured number in flight.
// Per-item failures are isolated into the result. The returned error is
// non-nil only for defect-class failures (invariant violations); use
// BatchResult.Err for the full failure summary.
//
// Cancelling ctx stops new items from starting; items already in flight
// finish under their own timeout and the rest are reported as canceled.
func (e *Engine) RunBatch(ctx context.Context, videoIDs []string) (*BatchResult, error) {
	ids := dedupe(videoIDs)
	res := &BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: e.clock.Now(),
		Requested: len(ids),
	}
	log := e.log.WithField("run_id", res.RunID)
	log.WithField("videos", len(ids)).Info("batch started")

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(e.concurrency))
	)

	record := func(id string, rec Record, cached bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			f := Failure{VideoID: id, Category: categorize(err), Err: err}
			res.Failed = append(res.Failed, f)
			e.metrics.BatchItem(string(f.Category))
			log.WithFields(logrus.Fields{
				"video_id": id,
				"category": f.Category,
			}).WithError(err).Warn("batch item failed")
		case cached:
			res.Skipped = append(res.Skipped, id)
			res.Cached = append(res.Cached, rec)
			e.metrics.BatchItem(OutcomeSkipped)
		default:
			res.Succeeded = append(res.Succeeded, rec)
			e.metrics.BatchItem(OutcomeSucceeded)
		}
	}

	for i, id := range ids {
		if ctx.Err() == nil {
			if err := sem.Acquire(ctx, 1); err == nil {
				res.Attempted++
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					defer sem.Release(1)
					rec, cached, err := e.runItem(ctx, id)
					record(id, rec, cached, err)
				}(id)
				continue
			}
		}

		cause := fmt.Errorf("%w: %w", errCanceled, context.Cause(ctx))
		for _, rest := range ids[i:] {
			record(rest, Record{}, false, cause)
		}
		break
	}
	wg.Wait()

	res.FinishedAt = e.clock.Now()
	log.WithFields(logrus.Fields{
		"succeeded": len(res.Succeeded),
		"skipped":   len(res.Skipped),
		"failed":    len(res.Failed),
		"elapsed":   res.FinishedAt.Sub(res.StartedAt).String(),
	}).Info("batch finished")

	var defects []error
	for _, f := range res.Failed {
		if f.Category == FailureInvariant {
			defects = append(defects, f.Err)
		}
	}
	return res, errors.Join(defects...)
}

// runItem detaches from the batch context so cancellation never interrupts
// a video mid-pipeline.
func (e *Engine) runItem(ctx context.Context, videoID string) (Record, bool, error) {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.itemTimeout)
	defer cancel()
	return e.getOrCompute(itemCtx, videoID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
