package lookup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pokedexos/dexcache/pkg/record"
)

// WarmProgress is emitted after every bulk warm item.
type WarmProgress struct {
	ID        int
	Done      int
	Total     int
	Succeeded int
	Err       error
}

// WarmReport summarizes a bulk warm run.
type WarmReport struct {
	From, To    int
	Attempted   int
	Succeeded   int
	Failed      []int
	Interrupted bool
}

// Total is the size of the requested range.
func (r *WarmReport) Total() int {
	return r.To - r.From + 1
}

func validateRange(from, to int) error {
	if from < 1 || to < from {
		return fmt.Errorf("invalid warm range %d..%d", from, to)
	}
	return nil
}

// BulkWarm fetches and stores every id in from..to (inclusive) in ascending
// order. Item failures are counted and skipped. Cancelling ctx stops the run
// after the item in flight; each item is bounded by the item timeout.
// onProgress may be nil.
func (s *Service) BulkWarm(ctx context.Context, from, to int, onProgress func(WarmProgress)) (*WarmReport, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	report := &WarmReport{From: from, To: to}
	total := report.Total()
	slog.Info("bulk_warm_start", "from", from, "to", to, "total", total)

	for id := from; id <= to; id++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			slog.Warn("bulk_warm_interrupted", "next_id", id, "done", report.Attempted, "total", total)
			break
		}

		err := s.warmOne(ctx, id)
		report.Attempted++

		result := "stored"
		if err != nil {
			result = "failed"
			report.Failed = append(report.Failed, id)
			slog.Warn("bulk_warm_item_failed", "record_id", id, "error", err)
		} else {
			report.Succeeded++
		}
		s.metrics.ObserveWarmItem(result, report.Attempted, total)

		if onProgress != nil {
			onProgress(WarmProgress{
				ID:        id,
				Done:      report.Attempted,
				Total:     total,
				Succeeded: report.Succeeded,
				Err:       err,
			})
		}
	}

	slog.Info("bulk_warm_complete",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", len(report.Failed),
		"interrupted", report.Interrupted)
	return report, nil
}

// warmOne runs one item detached from ctx's cancellation so that an
// interrupt lets the current item finish, bounded by the item timeout.
func (s *Service) warmOne(ctx context.Context, id int) error {
	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ItemTimeout)
	defer cancel()

	p, err := s.remote.Fetch(itemCtx, record.ByID(id))
	if err != nil {
		return err
	}
	return s.store.Store(itemCtx, p)
}

// WarmJob is a bulk warm running on its own goroutine.
type WarmJob struct {
	progress chan WarmProgress
	done     chan struct{}
	cancel   context.CancelFunc

	report *WarmReport
	err    error
}

// progressBuffer caps the progress channel; the run blocks on a slow reader
// until the job is stopped.
const progressBuffer = 64

// StartWarm runs BulkWarm in the background. Progress events arrive in id
// order on Progress(), which is closed when the run ends. After Stop, events
// the reader has no room for are dropped.
func (s *Service) StartWarm(ctx context.Context, from, to int) *WarmJob {
	ctx, cancel := context.WithCancel(ctx)
	job := &WarmJob{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	if err := validateRange(from, to); err != nil {
		job.progress = make(chan WarmProgress)
		job.err = err
		close(job.progress)
		close(job.done)
		cancel()
		return job
	}

	job.progress = make(chan WarmProgress, min(to-from+1, progressBuffer))

	go func() {
		defer close(job.done)
		defer close(job.progress)
		defer cancel()

		job.report, job.err = s.BulkWarm(ctx, from, to, func(p WarmProgress) {
			select {
			case job.progress <- p:
				return
			default:
			}
			select {
			case job.progress <- p:
			case <-ctx.Done():
			}
		})
	}()
	return job
}

// Progress streams per-item progress.
func (j *WarmJob) Progress() <-chan WarmProgress {
	return j.progress
}

// Stop asks the job to finish after the current item.
func (j *WarmJob) Stop() {
	j.cancel()
}

// Wait blocks until the job ends and returns its report. The caller must
// drain Progress or call Stop, otherwise a long run never ends.
func (j *WarmJob) Wait() (*WarmReport, error) {
	<-j.done
	return j.report, j.err
}
