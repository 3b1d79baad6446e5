package ui

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{
			name:  "file with total",
			event: ProgressEvent{Stage: StageIndexing, Current: 25, Total: 100, CurrentFile: "repos/site/index.html"},
			want:  "[INDEX] 25/100 - repos/site/index.html\n",
		},
		{
			name:  "message wins over file",
			event: ProgressEvent{Stage: StageIndexing, Current: 1, Total: 2, CurrentFile: "a.css", Message: "embedding"},
			want:  "[INDEX] 1/2 - embedding\n",
		},
		{
			name:  "no total",
			event: ProgressEvent{Stage: StageScanning, Message: "counting files"},
			want:  "[SCAN] counting files\n",
		},
		{
			name:  "nothing to say",
			event: ProgressEvent{Stage: StageScanning},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf, WithNoColor(true)))

			r.UpdateProgress(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_AddError(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithNoColor(true)))

	// When: reporting an error and a warning
	r.AddError(ErrorEvent{File: "a.html", Err: errors.New("read failed")})
	r.AddError(ErrorEvent{Err: errors.New("slow"), IsWarn: true})

	// Then: both lines are printed and recorded
	assert.Equal(t, "ERROR: a.html: read failed\nWARN: slow\n", buf.String())
	assert.Len(t, r.Errors(), 2)
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithNoColor(true)))

	// When: completing a partial run
	r.Complete(CompletionStats{
		Outcome:           "partial",
		FilesTotal:        10,
		FilesProcessed:    7,
		FilesUnchanged:    2,
		FilesFailed:       1,
		FilesDeleted:      3,
		Chunks:            42,
		EmbeddingFailures: 2,
		Workers:           3,
		Model:             "nomic-embed-text",
		Duration:          1500 * time.Millisecond,
	})

	// Then: the summary has every figure and no ANSI codes
	out := buf.String()
	assert.Contains(t, out, "Indexing complete")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "7 processed, 2 unchanged, 1 failed of 10")
	assert.Contains(t, out, "42 stored")
	assert.Contains(t, out, "3 files")
	assert.Contains(t, out, "nomic-embed-text")
	assert.Contains(t, out, "1.5s")
	assert.NotContains(t, out, "\x1b[")
}

func TestPlainRenderer_CompleteOmitsZeroFigures(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithNoColor(true)))

	r.Complete(CompletionStats{Outcome: "up_to_date"})

	out := buf.String()
	assert.NotContains(t, out, "Deleted")
	assert.NotContains(t, out, "Embed errors")
	assert.NotContains(t, out, "Workers")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	r := NewPlainRenderer(NewConfig(&bytes.Buffer{}))
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}

func TestPlainRenderer_ThreadSafe(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf, WithNoColor(true)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: i, Total: 10, CurrentFile: "f"})
			r.AddError(ErrorEvent{Err: errors.New("x"), IsWarn: true})
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.Errors(), 10)
}
