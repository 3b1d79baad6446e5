package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_MissingFileIsEmpty(t *testing.T) {
	// Given: no snapshot on disk
	p := NewPaths(t.TempDir())

	// When: loading
	snap, err := LoadSnapshot(p.Hashes())

	// Then: empty, no error
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	// Given: a snapshot in a directory that does not exist yet
	p := NewPaths(filepath.Join(t.TempDir(), ".index"))
	snap := Snapshot{"repos/a/index.html": "abc", "css/site.css": "def"}

	// When: saving and loading
	require.NoError(t, SaveSnapshot(p.Hashes(), snap))
	loaded, err := LoadSnapshot(p.Hashes())

	// Then: contents match and no temp files remain
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file_hashes.json", entries[0].Name())
}

func TestSnapshot_CorruptFileReturnsEmptyAndError(t *testing.T) {
	// Given: a corrupt snapshot
	p := NewPaths(t.TempDir())
	require.NoError(t, os.WriteFile(p.Hashes(), []byte("{not json"), 0o644))

	// When: loading
	snap, err := LoadSnapshot(p.Hashes())

	// Then: an error, and a usable empty snapshot
	require.Error(t, err)
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestSnapshot_Missing(t *testing.T) {
	prev := Snapshot{"a": "1", "b": "2", "c": "3"}
	cur := Snapshot{"b": "2", "d": "4"}

	assert.Equal(t, []string{"a", "c"}, prev.Missing(cur))
	assert.Empty(t, cur.Missing(cur))
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	orig := Snapshot{"a": "1"}
	c := orig.Clone()
	c["a"] = "2"
	c["b"] = "3"

	assert.Equal(t, "1", orig["a"])
	assert.Len(t, orig, 1)
	assert.Equal(t, []string{"a", "b"}, c.Paths())
}

func TestRunStats_Outcome(t *testing.T) {
	tests := []struct {
		name  string
		stats RunStats
		want  Outcome
	}{
		{"nothing changed", RunStats{FilesUnchanged: 10}, OutcomeUpToDate},
		{"all indexed", RunStats{FilesProcessed: 3}, OutcomeIndexed},
		{"some failed", RunStats{FilesProcessed: 3, FilesFailed: 1}, OutcomePartial},
		{"read errors count as failures", RunStats{FilesProcessed: 1, FilesSkippedReadError: 2}, OutcomePartial},
		{"all failed", RunStats{FilesFailed: 4}, OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stats.Outcome())
		})
	}
}

func TestRunStats_Derived(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewRunStats("run-1", ModeFull, start)
	assert.Zero(t, s.Duration())
	assert.Zero(t, s.AvgEmbedMs())

	s.RunEnd = start.Add(90 * time.Second)
	s.ChunksEmbedded = 4
	s.TotalEmbeddingTimeMs = 200

	assert.Equal(t, 90*time.Second, s.Duration())
	assert.InDelta(t, 50.0, s.AvgEmbedMs(), 0.0001)
}

func TestStats_WriteRead(t *testing.T) {
	// Given: finished run stats with a store summary
	p := NewPaths(t.TempDir())
	s := NewRunStats("run-1", ModeIncremental, time.Now())
	s.FilesProcessed = 2
	s.ChunksStored = 9
	s.Store = &StoreSummary{TotalChunks: 40, FrameworkDistribution: map[string]int{"react": 40}}

	// When: written and read back
	require.NoError(t, WriteStats(p.Stats(), s))
	got, err := ReadStats(p.Stats())

	// Then: the original key names are on disk and values survive
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.FilesProcessed)
	assert.Equal(t, 40, got.Store.TotalChunks)

	raw, err := os.ReadFile(p.Stats())
	require.NoError(t, err)
	for _, key := range []string{"run_start", "files_processed", "chunks_stored", "files_deleted_from_store", "total_embedding_time_ms"} {
		assert.Contains(t, string(raw), `"`+key+`"`)
	}
}

func TestStats_ReadMissing(t *testing.T) {
	got, err := ReadStats(filepath.Join(t.TempDir(), "stats.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHistory_AppendAndTail(t *testing.T) {
	// Given: three appended runs and one garbage line
	p := NewPaths(t.TempDir())
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, AppendHistory(p.History(), NewRunStats(id, ModeIncremental, time.Now())))
	}
	f, err := os.OpenFile(p.History(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// When: reading the tail
	runs, err := ReadHistory(p.History(), 2)
	require.NoError(t, err)
	last, err := LastRun(p.History())
	require.NoError(t, err)
	all, err := ReadHistory(p.History(), 0)
	require.NoError(t, err)

	// Then: oldest first, garbage skipped
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].RunID)
	assert.Equal(t, "r3", runs[1].RunID)
	assert.Equal(t, "r3", last.RunID)
	assert.Len(t, all, 3)
}

func TestHistory_LastRunMissing(t *testing.T) {
	last, err := LastRun(filepath.Join(t.TempDir(), "index_log.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRunLock_SecondHolderRefused(t *testing.T) {
	// Given: one holder
	p := NewPaths(filepath.Join(t.TempDir(), "meta"))
	first := NewRunLock(p)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	// When: a second lock on the same file tries
	second := NewRunLock(p)
	ok, err = second.TryLock()

	// Then: refused until the first releases
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
}

func TestRunLock_UnlockWithoutLock(t *testing.T) {
	l := NewRunLock(NewPaths(t.TempDir()))
	assert.NoError(t, l.Unlock())
	assert.True(t, strings.HasSuffix(l.Path(), "indexer.lock"))
}

func TestWriteMetrics(t *testing.T) {
	// Given: a finished run
	p := NewPaths(t.TempDir())
	start := time.Now().Add(-time.Minute)
	s := NewRunStats("run-1", ModeFull, start)
	s.RunEnd = start.Add(time.Minute)
	s.FilesProcessed = 5
	s.ChunksStored = 12
	s.FinalWorkers = 2
	s.Store = &StoreSummary{TotalChunks: 12}

	// When: exporting
	require.NoError(t, WriteMetrics(p.Metrics(), s))

	// Then: the textfile carries labelled gauges
	raw, err := os.ReadFile(p.Metrics())
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `design_indexer_files{result="processed"} 5`)
	assert.Contains(t, text, `design_indexer_chunks{stage="stored"} 12`)
	assert.Contains(t, text, "design_indexer_workers 2")
	assert.Contains(t, text, "design_indexer_store_chunks 12")
	assert.Contains(t, text, "design_indexer_last_run_duration_seconds 60")
}
