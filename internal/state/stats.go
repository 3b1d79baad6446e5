package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Mode is the kind of index run.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Outcome summarizes a finished run.
type Outcome string

const (
	// OutcomeUpToDate means nothing changed since the last run.
	OutcomeUpToDate Outcome = "up_to_date"
	// OutcomeIndexed means every changed file was indexed.
	OutcomeIndexed Outcome = "indexed"
	// OutcomePartial means some files were indexed and some failed.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means changed files existed but none could be indexed.
	OutcomeFailed Outcome = "failed"
)

// StoreSummary is the store's view at the end of a run.
type StoreSummary struct {
	TotalChunks           int            `json:"total_chunks"`
	FrameworkDistribution map[string]int `json:"framework_distribution"`
	ComponentCategories   map[string]int `json:"component_categories"`
}

// RunStats are the counters of one index run.
type RunStats struct {
	RunID    string    `json:"run_id"`
	Mode     Mode      `json:"mode"`
	RunStart time.Time `json:"run_start"`
	RunEnd   time.Time `json:"run_end,omitempty"`

	TotalFiles            int `json:"total_files"`
	FilesProcessed        int `json:"files_processed"`
	FilesUnchanged        int `json:"files_unchanged"`
	FilesSkippedEmpty     int `json:"files_skipped_empty"`
	FilesSkippedReadError int `json:"files_skipped_read_error"`
	FilesFailed           int `json:"files_failed"`

	ChunksCreated     int `json:"chunks_created"`
	ChunksEmbedded    int `json:"chunks_embedded"`
	ChunksStored      int `json:"chunks_stored"`
	EmbeddingFailures int `json:"embedding_failures"`
	FlushFailures     int `json:"flush_failures"`

	FilesDeletedFromStore int     `json:"files_deleted_from_store"`
	TotalEmbeddingTimeMs  float64 `json:"total_embedding_time_ms"`

	WorkerChanges  int `json:"worker_changes"`
	ThrottleEvents int `json:"throttle_events"`
	FinalWorkers   int `json:"final_workers"`

	Store *StoreSummary `json:"store,omitempty"`
}

// NewRunStats starts the counters for a run.
func NewRunStats(runID string, mode Mode, start time.Time) *RunStats {
	return &RunStats{RunID: runID, Mode: mode, RunStart: start.UTC()}
}

// Outcome distinguishes "nothing changed" from "nothing could be processed".
func (s *RunStats) Outcome() Outcome {
	failed := s.FilesFailed + s.FilesSkippedReadError
	switch {
	case s.FilesProcessed == 0 && failed == 0:
		return OutcomeUpToDate
	case s.FilesProcessed == 0:
		return OutcomeFailed
	case failed == 0:
		return OutcomeIndexed
	default:
		return OutcomePartial
	}
}

// AvgEmbedMs is the mean embedding latency.
func (s *RunStats) AvgEmbedMs() float64 {
	if s.ChunksEmbedded == 0 {
		return 0
	}
	return s.TotalEmbeddingTimeMs / float64(s.ChunksEmbedded)
}

// Duration is the wall time of the run, zero while it is still running.
func (s *RunStats) Duration() time.Duration {
	if s.RunEnd.IsZero() {
		return 0
	}
	return s.RunEnd.Sub(s.RunStart)
}

// WriteStats rewrites the latest-run summary.
func WriteStats(path string, stats *RunStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}
	return writeFileAtomic(path, data)
}

// ReadStats reads the latest-run summary; (nil, nil) when none exists.
func ReadStats(path string) (*RunStats, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run stats: %w", err)
	}

	var stats RunStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse run stats %s: %w", path, err)
	}
	return &stats, nil
}

// AppendHistory appends one JSON line for the run.
func AppendHistory(path string, stats *RunStats) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	line, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append run history: %w", err)
	}
	return nil
}

// ReadHistory returns up to the last n runs, oldest first. n <= 0 returns
// every run. Lines that fail to parse are skipped.
func ReadHistory(path string, n int) ([]*RunStats, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}

	var runs []*RunStats
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var run RunStats
		if err := json.Unmarshal(line, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan run history: %w", err)
	}

	if n > 0 && len(runs) > n {
		runs = runs[len(runs)-n:]
	}
	return runs, nil
}

// LastRun returns the most recent history record, or nil.
func LastRun(path string) (*RunStats, error) {
	runs, err := ReadHistory(path, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}
