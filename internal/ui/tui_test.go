package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating a TUI renderer
	r, err := NewTUIRenderer(cfg)

	// Then: it refuses
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true)))

	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIndexingModel_InitialView(t *testing.T) {
	// Given: a fresh model
	model := newIndexingModel(NewProgressTracker(), "/srv/library")
	model.styles = NoColorStyles()

	// When: rendering
	view := model.View()

	// Then: the title and every stage are shown
	assert.Contains(t, view, "/srv/library")
	assert.Contains(t, view, "Scan")
	assert.Contains(t, view, "Index")
	assert.Contains(t, view, "Cleanup")
	assert.Contains(t, view, "Scanning...")
}

func TestIndexingModel_ProgressDisplay(t *testing.T) {
	// Given: a model halfway through indexing
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 100)
	tracker.Update(50, "components/landing/hero.html")
	model := newIndexingModel(tracker, "")
	model.styles = NoColorStyles()

	// When: rendering
	view := model.View()

	// Then: counts, percentage and the current file are shown
	assert.Contains(t, view, "50 / 100 files")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "hero.html")
}

func TestIndexingModel_ErrorCounts(t *testing.T) {
	// Given: one error and two warnings
	model := newIndexingModel(NewProgressTracker(), "")
	model.styles = NoColorStyles()
	model.addError(ErrorEvent{File: "a.html", Err: assert.AnError})
	model.addError(ErrorEvent{File: "b.html", Err: assert.AnError, IsWarn: true})
	model.addError(ErrorEvent{File: "c.html", Err: assert.AnError, IsWarn: true})

	// When: rendering
	view := model.View()

	// Then: both counts appear in the status line
	assert.Contains(t, view, "2 warnings")
	assert.Contains(t, view, "1 errors")
}

func TestIndexingModel_CompleteQuitsWithSummary(t *testing.T) {
	// Given: a running model
	model := newIndexingModel(NewProgressTracker(), "")
	model.styles = NoColorStyles()

	// When: the run completes
	_, cmd := model.Update(completeMsg(CompletionStats{
		Outcome:        "indexed",
		FilesTotal:     3,
		FilesProcessed: 3,
		Chunks:         7,
		Duration:       1500 * time.Millisecond,
	}))

	// Then: the program quits and the summary replaces the live view
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	view := model.View()
	assert.Contains(t, view, "Indexing complete")
	assert.Contains(t, view, "7 stored")
	assert.NotContains(t, view, "Scan")
}

func TestIndexingModel_WindowResize(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, model.width)
	assert.Equal(t, 90, model.progressBar.Width)
}

func TestTruncateFilePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		maxLen int
	}{
		{"short", "components/hero.html", 50},
		{"long", "components/landing/pages/very/deeply/nested/hero.html", 30},
		{"long name", "components/an-extremely-long-component-file-name.html", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateFilePath(tt.path, tt.maxLen)

			assert.LessOrEqual(t, len(got), tt.maxLen)
			if len(tt.path) <= tt.maxLen {
				assert.Equal(t, tt.path, got)
			} else {
				assert.Contains(t, got, "...")
			}
		})
	}
}

func TestTruncateFilePath_KeepsFileName(t *testing.T) {
	got := truncateFilePath("components/landing/pages/very/deeply/nested/hero.html", 30)

	assert.Len(t, got, 30)
	assert.Contains(t, got, "/hero.html")
}
