package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func startPolling(t *testing.T, root string) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(testOptions(root))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = w.Start(ctx)
	}()

	// Wait for the baseline scan
	time.Sleep(100 * time.Millisecond)
	return w
}

func nextEvent(t *testing.T, w *PollingWatcher) FileEvent {
	t.Helper()
	select {
	case event := <-w.Events():
		return event
	case err := <-w.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for polling event")
	}
	return FileEvent{}
}

func TestPollingWatcher_DetectsFileCreation(t *testing.T) {
	// Given: a polling watcher over an empty library
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "components"), 0o755))
	w := startPolling(t, root)

	// When: a component is added
	writeFile(t, root, "components/hero.html", "<section>hero</section>")

	// Then: a CREATE event is detected
	event := nextEvent(t, w)
	assert.Equal(t, OpCreate, event.Operation)
	assert.Equal(t, "components/hero.html", event.Path)
}

func TestPollingWatcher_DetectsFileModification(t *testing.T) {
	// Given: a library with an existing file
	root := t.TempDir()
	writeFile(t, root, "components/hero.html", "<section>hero</section>")
	w := startPolling(t, root)

	// When: the file grows
	writeFile(t, root, "components/hero.html", "<section>hero with more content</section>")

	// Then: a MODIFY event is detected
	event := nextEvent(t, w)
	assert.Equal(t, OpModify, event.Operation)
	assert.Equal(t, "components/hero.html", event.Path)
}

func TestPollingWatcher_DetectsFileDeletion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "components/footer.css", ".footer { margin: 0; }")
	w := startPolling(t, root)

	require.NoError(t, os.Remove(filepath.Join(root, "components", "footer.css")))

	event := nextEvent(t, w)
	assert.Equal(t, OpDelete, event.Operation)
	assert.Equal(t, "components/footer.css", event.Path)
}

func TestPollingWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	// Given: a polling watcher
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "components"), 0o755))
	w := startPolling(t, root)

	// When: only unwatched files change, then a watched one
	writeFile(t, root, "components/notes.md", "notes")
	writeFile(t, root, "drafts/hero.html", "<div></div>")
	writeFile(t, root, "components/node_modules/lib/index.css", ".x {}")
	time.Sleep(150 * time.Millisecond)
	writeFile(t, root, "components/card.html", "<div class=\"card\"></div>")

	// Then: the first event is the watched file
	event := nextEvent(t, w)
	assert.Equal(t, "components/card.html", event.Path)
}

func TestPollingWatcher_StopIsIdempotent(t *testing.T) {
	w := NewPollingWatcher(testOptions(t.TempDir()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
