package engine

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satnambhatt/ai-engine/internal/autotune"
	"github.com/satnambhatt/ai-engine/internal/embed"
	"github.com/satnambhatt/ai-engine/internal/state"
	"github.com/satnambhatt/ai-engine/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder returns a deterministic vector per text.
type fakeEmbedder struct {
	healthErr error
	// failWhen makes Embed fail for matching texts.
	failWhen func(text string) bool

	calls atomic.Int64
	mu    sync.Mutex
	texts []string
}

var _ embed.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Health(context.Context) error { return f.healthErr }

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(_ context.Context, text string) (embed.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.failWhen != nil && f.failWhen(text) {
		return embed.Result{}, stderrors.New("embedding service failed")
	}
	return embed.Result{Vector: []float32{1, float32(len(text))}, Duration: time.Millisecond}, nil
}

func (f *fakeEmbedder) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu        sync.Mutex
	records   map[string]store.Record
	upsertErr error
	deleteErr error
	inits     int
	resets    int
	deletes   []string
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{records: make(map[string]store.Record)}
}

func (m *memStore) Init(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	return nil
}

func (m *memStore) Upsert(_ context.Context, records []store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memStore) DeleteByFile(_ context.Context, filePath string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deletes = append(m.deletes, filePath)
	n := 0
	for id, r := range m.records {
		if r.Meta.FilePath == filePath {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteIDs(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *memStore) Query(context.Context, []float32, store.Query) ([]store.Result, error) {
	return nil, nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *memStore) Summary(context.Context, int) (store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := store.Summary{
		TotalChunks: len(m.records),
		Frameworks:  map[string]int{},
		Categories:  map[string]int{},
	}
	for _, r := range m.records {
		sum.Frameworks[r.Meta.Framework]++
		sum.Categories[r.Meta.ComponentCategory]++
	}
	return sum, nil
}

func (m *memStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.records = make(map[string]store.Record)
	return nil
}

func (m *memStore) Close() error { return nil }

// files returns the distinct file paths with stored records.
func (m *memStore) files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]bool{}
	for _, r := range m.records {
		set[r.Meta.FilePath] = true
	}
	var out []string
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) recordsFor(filePath string) []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Record
	for _, r := range m.records {
		if r.Meta.FilePath == filePath {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.ChunkIndex < out[j].Meta.ChunkIndex })
	return out
}

// scriptedAdvisor replays decisions, repeating the last one.
type scriptedAdvisor struct {
	decisions []autotune.Decision
	calls     int
}

func (a *scriptedAdvisor) Recommend(context.Context) autotune.Decision {
	d := a.decisions[min(a.calls, len(a.decisions)-1)]
	a.calls++
	return d
}

func hot(workers int, temp float64) autotune.Decision {
	return autotune.Decision{Workers: workers, Metrics: autotune.Metrics{TempC: autotune.Some(temp)}}
}

// recordingMetrics captures the stats passed to the metrics sink.
type recordingMetrics struct {
	runs []*state.RunStats
}

func (r *recordingMetrics) sink(stats *state.RunStats) error {
	r.runs = append(r.runs, stats)
	return nil
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
