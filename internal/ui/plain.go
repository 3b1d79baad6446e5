package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PlainRenderer outputs one line per progress update.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Format: [STAGE] current/total - message or file
	var msg string
	if event.Message != "" {
		msg = event.Message
	} else if event.CurrentFile != "" {
		msg = event.CurrentFile
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := r.styles.Error.Render("ERROR")
	if event.IsWarn {
		prefix = r.styles.Warning.Render("WARN")
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.out, summary(r.styles, stats))
}

// summary renders the completion panel shared by both renderers.
func summary(s Styles, stats CompletionStats) string {
	var b strings.Builder

	b.WriteString(s.Header.Render("Indexing complete"))
	b.WriteString("  ")
	b.WriteString(s.OutcomeStyle(stats.Outcome).Render(stats.Outcome))
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", s.Label.Render(fmt.Sprintf("%-12s", label+":")), value)
	}
	row("Files", fmt.Sprintf("%d processed, %d unchanged, %d failed of %d",
		stats.FilesProcessed, stats.FilesUnchanged, stats.FilesFailed, stats.FilesTotal))
	row("Chunks", fmt.Sprintf("%d stored", stats.Chunks))
	if stats.EmbeddingFailures > 0 {
		row("Embed errors", s.Warning.Render(fmt.Sprintf("%d", stats.EmbeddingFailures)))
	}
	if stats.FilesDeleted > 0 {
		row("Deleted", fmt.Sprintf("%d files", stats.FilesDeleted))
	}
	if stats.Model != "" {
		row("Model", stats.Model)
	}
	if stats.Workers > 0 {
		row("Workers", fmt.Sprintf("%d", stats.Workers))
	}
	row("Duration", stats.Duration.Round(100*time.Millisecond).String())

	return s.Panel.Render(strings.TrimSuffix(b.String(), "\n"))
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// Errors returns the errors reported so far.
func (r *PlainRenderer) Errors() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]ErrorEvent, len(r.errors))
	copy(result, r.errors)
	return result
}
