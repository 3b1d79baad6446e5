package watcher

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/satnambhatt/ai-engine/internal/errors"
	"github.com/satnambhatt/ai-engine/internal/state"
)

// Indexer runs one index pass.
type Indexer interface {
	Run(ctx context.Context, full bool) (*state.RunStats, error)
}

// Retry timing for deferred runs.
const (
	DefaultRetryDelay    = 30 * time.Second
	DefaultMaxRetryDelay = 10 * time.Minute
)

// Runner turns debounced batches into incremental index runs. Runs are
// sequential; batches that arrive during a run are merged into the next.
type Runner struct {
	indexer Indexer
	logger  *slog.Logger

	// RetryDelay is the wait before re-running a deferred run. It doubles
	// after each consecutive deferral, up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// OnRun is called after every run, if set.
	OnRun func(stats *state.RunStats, err error)
}

// NewRunner creates a Runner for indexer.
func NewRunner(indexer Indexer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		indexer:       indexer,
		logger:        logger,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// Run consumes batches until the channel closes or ctx ends. It returns
// nil on a closed channel and ctx.Err() on cancellation. A run deferred by
// a held lock or an unreachable embedding service is retried on a backoff
// timer, or sooner when a new batch arrives; other fatal run errors stop
// the loop.
func (r *Runner) Run(ctx context.Context, batches <-chan []FileEvent) error {
	var retry *time.Timer
	var retryC <-chan time.Time
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
			retry, retryC = nil, nil
		}
	}
	defer stopRetry()

	delay := r.RetryDelay
	for {
		var changes int
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			changes = len(batch) + drain(batches)
		case <-retryC:
			retry, retryC = nil, nil
			changes = drain(batches)
			r.logger.Info("watch_run_retry", slog.Int("changes", changes))
		}
		stopRetry()

		deferred, err := r.runOnce(ctx, changes)
		if err != nil {
			return err
		}
		if !deferred {
			delay = r.RetryDelay
			continue
		}

		retry = time.NewTimer(delay)
		retryC = retry.C
		r.logger.Info("watch_retry_scheduled", slog.Duration("delay", delay))
		delay = min(delay*2, max(r.MaxRetryDelay, r.RetryDelay))
	}
}

// drain empties the queued batches and returns how many events they held.
func drain(batches <-chan []FileEvent) int {
	n := 0
	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				return n
			}
			n += len(batch)
		default:
			return n
		}
	}
}

// runOnce runs the indexer once and reports whether the run should be
// retried later.
func (r *Runner) runOnce(ctx context.Context, changes int) (deferred bool, err error) {
	r.logger.Info("watch_run_triggered", slog.Int("changes", changes))

	stats, err := r.indexer.Run(ctx, false)
	if r.OnRun != nil {
		r.OnRun(stats, err)
	}

	switch {
	case err == nil:
		r.logger.Info("watch_run_complete",
			slog.String("outcome", string(stats.Outcome())),
			slog.Int("files_processed", stats.FilesProcessed),
			slog.Int("files_failed", stats.FilesFailed),
			slog.Int("files_deleted", stats.FilesDeletedFromStore))
		return false, nil
	case stderrors.Is(err, context.Canceled) && ctx.Err() != nil:
		return false, ctx.Err()
	case errors.GetCode(err) == errors.ErrCodeLockHeld || errors.IsRetryable(err):
		r.logger.Warn("watch_run_deferred", errors.LogAttrs(err)...)
		return true, nil
	case errors.IsFatal(err):
		r.logger.Error("watch_run_fatal", errors.LogAttrs(err)...)
		return false, err
	default:
		r.logger.Warn("watch_run_failed", errors.LogAttrs(err)...)
		return false, nil
	}
}
