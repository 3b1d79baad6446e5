package engine

import "github.com/satnambhatt/ai-engine/internal/store"

// batch accumulates records between flushes. Files are added whole, so
// every file's records land in exactly one flush.
type batch struct {
	records []store.Record
	files   []string
}

func (b *batch) add(relPath string, records []store.Record) {
	if len(records) == 0 {
		return
	}
	b.records = append(b.records, records...)
	b.files = append(b.files, relPath)
}

func (b *batch) len() int { return len(b.records) }

func (b *batch) reset() {
	b.records = nil
	b.files = nil
}
