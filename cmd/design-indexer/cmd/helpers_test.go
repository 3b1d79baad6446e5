package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satnambhatt/ai-engine/internal/embed"
	"github.com/satnambhatt/ai-engine/internal/store"
)

// seededStore returns an initialized store holding the given records.
func seededStore(t *testing.T, records ...store.Record) *store.LibraryStore {
	t.Helper()
	st, err := store.NewLibraryStore(store.Options{Dir: t.TempDir(), Collection: "cli"})
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	if len(records) > 0 {
		require.NoError(t, st.Upsert(context.Background(), records))
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func chunkRecord(id, file, framework, section string, vec []float32) store.Record {
	return store.Record{
		ID:     id,
		Text:   "<section class=\"" + section + "\">\n  <h1>" + id + "</h1>\n</section>",
		Vector: vec,
		Meta: store.Metadata{
			FilePath:          file,
			Extension:         ".html",
			Framework:         framework,
			RepoName:          "landing-kit",
			ComponentCategory: "hero",
			SectionType:       section,
			FileType:          "code",
		},
	}
}

// fixedEmbedder maps every text to the same vector.
type fixedEmbedder struct {
	vec       []float32
	healthErr error
	texts     []string
}

func (f *fixedEmbedder) Health(context.Context) error { return f.healthErr }

func (f *fixedEmbedder) Embed(_ context.Context, text string) (embed.Result, error) {
	f.texts = append(f.texts, text)
	return embed.Result{Vector: f.vec}, nil
}

func (f *fixedEmbedder) Model() string { return "fixed" }
