// Package engine runs indexing passes over the design library.
//
// A run discovers changed files, chunks each one, embeds the chunks with
// a bounded worker pool sized by the autotune controller, and upserts
// them into the vector store in batches. Files are handled one at a time;
// only the embedding of a single file's chunks is concurrent. Per-file
// failures are counted and retried on the next run; only the startup
// preconditions abort a run.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/satnambhatt/ai-engine/internal/autotune"
	"github.com/satnambhatt/ai-engine/internal/chunk"
	"github.com/satnambhatt/ai-engine/internal/config"
	"github.com/satnambhatt/ai-engine/internal/discovery"
	"github.com/satnambhatt/ai-engine/internal/embed"
	"github.com/satnambhatt/ai-engine/internal/errors"
	"github.com/satnambhatt/ai-engine/internal/state"
	"github.com/satnambhatt/ai-engine/internal/store"
	"github.com/satnambhatt/ai-engine/internal/ui"
)

// Chunker splits file content into chunks.
type Chunker interface {
	Chunk(content, ext string) []chunk.Chunk
	Single(content, section string) []chunk.Chunk
}

// WorkerAdvisor recommends the embedding pool size.
type WorkerAdvisor interface {
	Recommend(ctx context.Context) autotune.Decision
}

// MetricsSink receives the final stats of every run.
type MetricsSink func(stats *state.RunStats) error

// Config configures an Engine.
type Config struct {
	Discovery discovery.Options

	// BatchSize is the number of records that triggers a flush.
	BatchSize int
	// LogEvery is the number of files between progress logs.
	LogEvery int
	// EvaluateEvery is the number of files between worker re-evaluations.
	EvaluateEvery int

	MinWorkers int
	MaxWorkers int
	Thermal    ThermalConfig

	// SummarySample bounds the rows inspected for the store summary.
	SummarySample int
}

// ConfigFromConfig maps the configuration onto engine options.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{
		Discovery:     discovery.OptionsFromConfig(cfg),
		BatchSize:     cfg.Indexing.BatchSize,
		LogEvery:      cfg.Indexing.LogEvery,
		EvaluateEvery: cfg.Workers.EvaluateEvery,
		MinWorkers:    cfg.Workers.Min,
		MaxWorkers:    cfg.Workers.Max,
		Thermal: ThermalConfig{
			Throttle:    cfg.Workers.TempThrottle,
			Recover:     cfg.Workers.TempRecover,
			HeldWorkers: cfg.Workers.ThrottledWorkers,
		},
		SummarySample: store.DefaultSummarySize,
	}
}

// Dependencies are the collaborators of an Engine.
type Dependencies struct {
	Embedder   embed.Embedder
	Store      store.Store
	Chunker    Chunker
	Controller WorkerAdvisor
	// StateDir holds the hash snapshot, run stats, history and lock.
	StateDir string

	// Renderer is optional; nil discards progress output.
	Renderer ui.Renderer
	// Metrics is optional; nil writes a Prometheus textfile to StateDir.
	Metrics MetricsSink
	Logger  *slog.Logger
}

// Engine runs indexing passes. Runs on one Engine never overlap.
type Engine struct {
	cfg      Config
	embedder embed.Embedder
	store    store.Store
	chunker  Chunker
	advisor  WorkerAdvisor
	paths    state.Paths
	renderer ui.Renderer
	metrics  MetricsSink
	logger   *slog.Logger

	running sync.Mutex
	now     func() time.Time
}

// New validates the configuration and dependencies.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("worker controller is required")
	}
	if deps.StateDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if cfg.Discovery.Root == "" {
		return nil, fmt.Errorf("library root is required")
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 25
	}
	if cfg.EvaluateEvery <= 0 {
		cfg.EvaluateEvery = 50
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.SummarySample <= 0 {
		cfg.SummarySample = store.DefaultSummarySize
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.NopRenderer{}
	}

	paths := state.NewPaths(deps.StateDir)
	metrics := deps.Metrics
	if metrics == nil {
		metrics = func(stats *state.RunStats) error {
			return state.WriteMetrics(paths.Metrics(), stats)
		}
	}

	return &Engine{
		cfg:      cfg,
		embedder: deps.Embedder,
		store:    deps.Store,
		chunker:  deps.Chunker,
		advisor:  deps.Controller,
		paths:    paths,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Paths returns the state file locations.
func (e *Engine) Paths() state.Paths {
	return e.paths
}

// Run executes one indexing pass. A full run resets the store and ignores
// the previous snapshot; an incremental run only processes files whose
// hash changed and removes files that disappeared.
//
// The returned error is non-nil only when a startup precondition fails,
// the context is cancelled, or the run state cannot be persisted; the
// stats are returned in the latter two cases as well.
func (e *Engine) Run(ctx context.Context, full bool) (*state.RunStats, error) {
	if !e.running.TryLock() {
		return nil, errors.New(errors.ErrCodeLockHeld, "an index run is already in progress", nil)
	}
	defer e.running.Unlock()

	if err := e.preflight(ctx); err != nil {
		return nil, err
	}

	lock := state.NewRunLock(e.paths)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeStateWrite, "failed to acquire run lock", err).
			WithDetail("path", lock.Path())
	}
	if !locked {
		return nil, errors.New(errors.ErrCodeLockHeld, "another indexer holds the run lock", nil).
			WithDetail("path", lock.Path()).
			WithSuggestion("wait for the running indexer to finish")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			e.logger.Warn("run_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	if err := e.store.Init(ctx); err != nil {
		return nil, coded(errors.ErrCodeStoreWrite, err)
	}

	mode := state.ModeIncremental
	if full {
		mode = state.ModeFull
	}
	r := &run{
		e:       e,
		stats:   state.NewRunStats(uuid.NewString(), mode, e.now()),
		full:    full,
		handled: make(map[string]struct{}),
		revert:  make(map[string]struct{}),
	}

	if err := r.loadPrevious(ctx); err != nil {
		return nil, err
	}

	if err := e.renderer.Start(ctx); err != nil {
		e.logger.Debug("renderer_start_failed", slog.String("error", err.Error()))
	}
	defer func() {
		if err := e.renderer.Stop(); err != nil {
			e.logger.Debug("renderer_stop_failed", slog.String("error", err.Error()))
		}
	}()

	return r.execute(ctx)
}

// preflight checks the library root and the embedding service.
func (e *Engine) preflight(ctx context.Context) error {
	root := e.cfg.Discovery.Root
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", root)
		}
		return errors.New(errors.ErrCodeRootMissing, "library root does not exist", err).
			WithDetail("root", root).
			WithSuggestion("mount the design library or set DESIGN_LIBRARY_ROOT")
	}

	if err := e.embedder.Health(ctx); err != nil {
		return coded(errors.ErrCodeEmbedUnavailable, err)
	}
	return nil
}

// coded wraps err with code unless it already carries one.
func coded(code string, err error) error {
	if errors.GetCode(err) != "" {
		return err
	}
	return errors.Wrap(code, err)
}

// run holds the mutable state of one pass.
type run struct {
	e        *Engine
	stats    *state.RunStats
	full     bool
	previous state.Snapshot
	batch    batch
	plan     WorkerPlan
	progress *ui.ProgressTracker

	// handled lists every file taken from discovery.
	handled map[string]struct{}
	// revert lists files whose hash must not advance in the new snapshot.
	revert map[string]struct{}
}

func (r *run) logger() *slog.Logger { return r.e.logger }

// loadPrevious reads the last snapshot. An unreadable snapshot cannot
// tell which stored files were deleted, so the run becomes a full pass.
func (r *run) loadPrevious(ctx context.Context) error {
	if !r.full {
		prev, err := state.LoadSnapshot(r.e.paths.Hashes())
		if err == nil {
			r.previous = prev
			return nil
		}
		readErr := errors.New(errors.ErrCodeStateRead, "hash snapshot unreadable", err).
			WithDetail("path", r.e.paths.Hashes())
		r.logger().Warn("hash_snapshot_unreadable", errors.LogAttrs(readErr)...)
		r.full = true
		r.stats.Mode = state.ModeFull
	}

	r.logger().Warn("full_reindex_resetting_store")
	if err := r.e.store.Reset(ctx); err != nil {
		return coded(errors.ErrCodeStoreWrite, err)
	}
	r.previous = state.Snapshot{}
	return nil
}

func (r *run) execute(ctx context.Context) (*state.RunStats, error) {
	e := r.e
	incremental := !r.full

	opts := e.cfg.Discovery
	opts.Logger = e.logger
	disc, err := discovery.New(opts, r.previous)
	if err != nil {
		return nil, err
	}

	e.logger.Info("index_run_started",
		slog.String("run_id", r.stats.RunID),
		slog.String("mode", string(r.stats.Mode)),
		slog.String("root", opts.Root))

	e.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "counting files"})
	r.stats.TotalFiles = disc.Count(ctx, incremental)
	e.logger.Info("index_files_counted", slog.Int("total_files", r.stats.TotalFiles))

	decision := e.advisor.Recommend(ctx)
	r.plan, _ = nextPlan(WorkerPlan{}, decision, e.cfg.Thermal, e.cfg.MinWorkers, e.cfg.MaxWorkers)

	r.progress = ui.NewProgressTracker()
	r.progress.SetStage(ui.StageIndexing, r.stats.TotalFiles)

	count := 0
	for f := range disc.Discover(ctx, incremental) {
		r.processFile(ctx, f)
		r.handled[f.RelPath] = struct{}{}
		count++
		r.progress.Update(count, f.RelPath)
		e.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageIndexing,
			Current:     count,
			Total:       r.stats.TotalFiles,
			CurrentFile: f.RelPath,
		})

		if count%e.cfg.LogEvery == 0 {
			r.logProgress(count)
		}
		if count%e.cfg.EvaluateEvery == 0 {
			r.reevaluate(ctx)
		}
		if r.batch.len() >= e.cfg.BatchSize {
			r.flush(ctx)
		}
	}

	ws := disc.Stats()
	r.stats.FilesUnchanged = ws.Unchanged
	r.stats.FilesSkippedReadError += ws.ReadErrors

	if ctx.Err() != nil {
		return r.finishCancelled(ctx, disc)
	}

	if r.batch.len() > 0 {
		r.flush(ctx)
	}

	next := disc.Observed()
	if incremental {
		r.removeDeleted(ctx, disc.Deleted(), next)
	}
	r.applyReverts(next)

	return r.finish(ctx, next, nil)
}

// processFile reads, chunks and embeds one file and adds its records to
// the batch. Any failure marks the file for revert.
func (r *run) processFile(ctx context.Context, f *discovery.File) {
	e := r.e

	data, err := os.ReadFile(f.Path)
	if err != nil {
		e.logger.Warn("file_read_failed", slog.String("path", f.RelPath), slog.String("error", err.Error()))
		e.renderer.AddError(ui.ErrorEvent{File: f.RelPath, Err: err, IsWarn: true})
		r.stats.FilesSkippedReadError++
		r.revert[f.RelPath] = struct{}{}
		return
	}
	content := strings.ToValidUTF8(string(data), "\uFFFD")

	// Old chunks are removed before the blank check so a file emptied to
	// whitespace leaves nothing behind.
	if _, err := e.store.DeleteByFile(ctx, f.RelPath); err != nil {
		e.logger.Warn("old_chunks_delete_failed", slog.String("path", f.RelPath), slog.String("error", err.Error()))
		r.markFailed(f.RelPath)
		return
	}

	if strings.TrimSpace(content) == "" {
		r.stats.FilesSkippedEmpty++
		return
	}

	var chunks []chunk.Chunk
	if f.Kind == discovery.KindConfig {
		chunks = e.chunker.Single(content, chunk.SectionConfig)
	} else {
		chunks = e.chunker.Chunk(content, f.Ext)
	}
	if len(chunks) == 0 {
		e.logger.Debug("file_yielded_no_chunks", slog.String("path", f.RelPath))
		r.stats.FilesProcessed++
		return
	}
	r.stats.ChunksCreated += len(chunks)

	records, failures := r.embedChunks(ctx, f, chunks)
	r.batch.add(f.RelPath, records)

	if failures > 0 {
		e.renderer.AddError(ui.ErrorEvent{
			File: f.RelPath,
			Err:  fmt.Errorf("%d of %d chunks failed to embed", failures, len(chunks)),
		})
		r.markFailed(f.RelPath)
		return
	}
	r.stats.FilesProcessed++
}

// embedChunks embeds a file's chunks on the current worker pool and
// returns the successful records in chunk order.
func (r *run) embedChunks(ctx context.Context, f *discovery.File, chunks []chunk.Chunk) ([]store.Record, int) {
	e := r.e
	slots := make([]*store.Record, len(chunks))

	var (
		mu        sync.Mutex
		failures  int
		embedTime time.Duration
	)

	var g errgroup.Group
	g.SetLimit(max(r.plan.Workers, 1))
	for i, c := range chunks {
		g.Go(func() error {
			res, err := e.embedder.Embed(ctx, embedText(buildPrefix(f, c.Section), c.Text))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if ctx.Err() == nil {
					e.logger.Warn("embedding_failed",
						append([]any{
							slog.String("path", f.RelPath),
							slog.Int("chunk", c.Index),
						}, errors.LogAttrs(err)...)...)
				}
				return nil
			}
			embedTime += res.Duration
			slots[i] = &store.Record{
				ID:     fmt.Sprintf("%s::%d", f.RelPath, c.Index),
				Text:   c.Text,
				Vector: res.Vector,
				Meta: store.Metadata{
					FilePath:          f.RelPath,
					Extension:         f.Ext,
					Framework:         f.Framework,
					RepoName:          f.Repo,
					ComponentCategory: f.Category,
					SectionType:       c.Section,
					FileType:          string(f.Kind),
					ChunkIndex:        c.Index,
					ChunkTotal:        c.Total,
					StartLine:         c.StartLine,
					EndLine:           c.EndLine,
					FileSize:          f.Size,
					SHA256:            f.Hash,
				},
			}
			return nil
		})
	}
	_ = g.Wait()

	records := make([]store.Record, 0, len(chunks))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}

	r.stats.ChunksEmbedded += len(records)
	r.stats.EmbeddingFailures += failures
	r.stats.TotalEmbeddingTimeMs += float64(embedTime) / float64(time.Millisecond)
	return records, failures
}

// markFailed counts a file as failed once and schedules its hash revert.
func (r *run) markFailed(relPath string) {
	if _, ok := r.revert[relPath]; ok {
		return
	}
	r.revert[relPath] = struct{}{}
	r.stats.FilesFailed++
}

// revertBatch moves every file of the unflushed batch from processed to failed.
func (r *run) revertBatch() {
	for _, rel := range r.batch.files {
		if _, failed := r.revert[rel]; !failed {
			r.stats.FilesProcessed--
		}
		r.markFailed(rel)
	}
}

// flush upserts the batch. On failure every file in the batch is reverted
// so the next run retries it; the flush itself is not retried.
func (r *run) flush(ctx context.Context) {
	e := r.e
	n := r.batch.len()

	if err := e.store.Upsert(ctx, r.batch.records); err != nil {
		r.stats.FlushFailures++
		e.logger.Error("batch_flush_failed",
			append([]any{
				slog.Int("records", n),
				slog.Int("files", len(r.batch.files)),
			}, errors.LogAttrs(err)...)...)
		r.revertBatch()
	} else {
		r.stats.ChunksStored += n
		e.logger.Debug("batch_flushed", slog.Int("records", n))
	}
	r.batch.reset()
}

func (r *run) logProgress(handled int) {
	total := r.stats.TotalFiles
	percent := 0.0
	if total > 0 {
		percent = float64(handled) / float64(total) * 100
	}
	r.logger().Info("index_progress",
		slog.Int("handled", handled),
		slog.Int("total", total),
		slog.String("percent", fmt.Sprintf("%.1f", percent)),
		slog.Int("remaining", r.progress.Remaining()),
		slog.Duration("eta", r.progress.ETA().Round(time.Second)),
		slog.Int("chunks_embedded", r.stats.ChunksEmbedded),
		slog.Int("workers", r.plan.Workers))
}

// reevaluate samples the host and applies the thermal hysteresis.
func (r *run) reevaluate(ctx context.Context) {
	e := r.e
	d := e.advisor.Recommend(ctx)
	plan, change := nextPlan(r.plan, d, e.cfg.Thermal, e.cfg.MinWorkers, e.cfg.MaxWorkers)

	temp, _ := d.Metrics.TempC.Get()
	switch change {
	case planThrottled:
		r.stats.ThrottleEvents++
		e.logger.Warn("thermal_throttle",
			slog.Float64("temp_c", temp),
			slog.Float64("threshold_c", e.cfg.Thermal.Throttle),
			slog.Int("workers", plan.Workers))
	case planRecovered:
		e.logger.Info("thermal_recovered",
			slog.Float64("temp_c", temp),
			slog.Float64("threshold_c", e.cfg.Thermal.Recover),
			slog.Int("workers", plan.Workers))
	}

	if plan.Workers != r.plan.Workers {
		r.stats.WorkerChanges++
		e.logger.Info("workers_changed", slog.Int("from", r.plan.Workers), slog.Int("to", plan.Workers))
	}
	r.plan = plan
}

// removeDeleted drops vanished files from the store. A file whose delete
// fails keeps its previous hash so the next run retries the delete.
func (r *run) removeDeleted(ctx context.Context, deleted []string, next state.Snapshot) {
	if len(deleted) == 0 {
		return
	}
	e := r.e
	e.logger.Info("deleted_files_cleanup", slog.Int("files", len(deleted)))

	for i, rel := range deleted {
		e.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageCleanup,
			Current:     i + 1,
			Total:       len(deleted),
			CurrentFile: rel,
		})
		n, err := e.store.DeleteByFile(ctx, rel)
		if err != nil {
			e.logger.Warn("deleted_file_cleanup_failed", slog.String("path", rel), slog.String("error", err.Error()))
			next[rel] = r.previous[rel]
			continue
		}
		r.stats.FilesDeletedFromStore++
		e.logger.Debug("deleted_file_removed", slog.String("path", rel), slog.Int("chunks", n))
	}
}

// applyReverts restores the previous hash of every failed file, or drops
// it when the file was new.
func (r *run) applyReverts(next state.Snapshot) {
	for rel := range r.revert {
		if prev, ok := r.previous[rel]; ok && !r.full {
			next[rel] = prev
		} else {
			delete(next, rel)
		}
	}
}

// finishCancelled persists what was completed before cancellation.
// Files that were not handled keep their previous hashes and no
// deletions are applied.
func (r *run) finishCancelled(ctx context.Context, disc *discovery.Discoverer) (*state.RunStats, error) {
	r.logger().Warn("index_run_cancelled", slog.Int("pending_records", r.batch.len()))
	r.revertBatch()
	r.batch.reset()

	observed := disc.Observed()
	next := r.previous.Clone()
	for rel := range r.handled {
		if hash, ok := observed[rel]; ok {
			next[rel] = hash
		}
	}
	r.applyReverts(next)

	return r.finish(context.WithoutCancel(ctx), next, ctx.Err())
}

// finish records the store summary and persists the run state.
func (r *run) finish(ctx context.Context, next state.Snapshot, runErr error) (*state.RunStats, error) {
	e := r.e
	stats := r.stats

	if runErr == nil {
		if sum, err := e.store.Summary(ctx, e.cfg.SummarySample); err != nil {
			e.logger.Warn("store_summary_failed", slog.String("error", err.Error()))
		} else {
			stats.Store = &state.StoreSummary{
				TotalChunks:           sum.TotalChunks,
				FrameworkDistribution: sum.Frameworks,
				ComponentCategories:   sum.Categories,
			}
		}
	}

	stats.FinalWorkers = r.plan.Workers
	stats.RunEnd = e.now().UTC()

	var persistErrs []error
	if err := state.SaveSnapshot(e.paths.Hashes(), next); err != nil {
		persistErrs = append(persistErrs, err)
	}
	if err := state.WriteStats(e.paths.Stats(), stats); err != nil {
		persistErrs = append(persistErrs, err)
	}
	if err := state.AppendHistory(e.paths.History(), stats); err != nil {
		persistErrs = append(persistErrs, err)
	}
	if err := e.metrics(stats); err != nil {
		e.logger.Warn("metrics_write_failed", slog.String("error", err.Error()))
	}

	outcome := stats.Outcome()
	e.logger.Info("index_run_complete",
		slog.String("run_id", stats.RunID),
		slog.String("outcome", string(outcome)),
		slog.Int("files_processed", stats.FilesProcessed),
		slog.Int("files_unchanged", stats.FilesUnchanged),
		slog.Int("files_failed", stats.FilesFailed),
		slog.Int("files_skipped_read_error", stats.FilesSkippedReadError),
		slog.Int("chunks_stored", stats.ChunksStored),
		slog.Int("embedding_failures", stats.EmbeddingFailures),
		slog.Int("flush_failures", stats.FlushFailures),
		slog.Int("files_deleted", stats.FilesDeletedFromStore),
		slog.String("avg_embed_ms", fmt.Sprintf("%.1f", stats.AvgEmbedMs())),
		slog.Duration("duration", stats.Duration().Round(time.Millisecond)))

	e.renderer.Complete(ui.CompletionStats{
		Outcome:           string(outcome),
		FilesTotal:        stats.TotalFiles,
		FilesProcessed:    stats.FilesProcessed,
		FilesUnchanged:    stats.FilesUnchanged,
		FilesFailed:       stats.FilesFailed + stats.FilesSkippedReadError,
		FilesDeleted:      stats.FilesDeletedFromStore,
		Chunks:            stats.ChunksStored,
		EmbeddingFailures: stats.EmbeddingFailures,
		Workers:           stats.FinalWorkers,
		Model:             e.embedder.Model(),
		Duration:          stats.Duration(),
	})

	if runErr != nil {
		return stats, runErr
	}
	if len(persistErrs) > 0 {
		return stats, errors.New(errors.ErrCodeStateWrite, "failed to persist run state", stderrors.Join(persistErrs...))
	}
	return stats, nil
}
