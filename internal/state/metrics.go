package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "design_indexer"

// WriteMetrics exports the counters of a finished run in the Prometheus
// text exposition format, for node_exporter's textfile collector.
// Each call builds a fresh registry so repeated runs never collide.
func WriteMetrics(path string, stats *RunStats) error {
	registry := prometheus.NewRegistry()

	files := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "files",
		Help:      "Files seen by the last run, by result.",
	}, []string{"result"})
	chunks := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "chunks",
		Help:      "Chunks handled by the last run, by stage.",
	}, []string{"stage"})
	failures := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "failures",
		Help:      "Failures in the last run, by kind.",
	}, []string{"kind"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_run_duration_seconds",
		Help:      "Wall time of the last run.",
	})
	finished := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})
	embedMs := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "embedding_avg_milliseconds",
		Help:      "Mean embedding latency in the last run.",
	})
	workers := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "workers",
		Help:      "Worker count at the end of the last run.",
	})
	stored := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "store_chunks",
		Help:      "Chunks in the store after the last run.",
	})

	for _, c := range []prometheus.Collector{files, chunks, failures, duration, finished, embedMs, workers, stored} {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	files.WithLabelValues("total").Set(float64(stats.TotalFiles))
	files.WithLabelValues("processed").Set(float64(stats.FilesProcessed))
	files.WithLabelValues("unchanged").Set(float64(stats.FilesUnchanged))
	files.WithLabelValues("empty").Set(float64(stats.FilesSkippedEmpty))
	files.WithLabelValues("read_error").Set(float64(stats.FilesSkippedReadError))
	files.WithLabelValues("failed").Set(float64(stats.FilesFailed))
	files.WithLabelValues("deleted").Set(float64(stats.FilesDeletedFromStore))

	chunks.WithLabelValues("created").Set(float64(stats.ChunksCreated))
	chunks.WithLabelValues("embedded").Set(float64(stats.ChunksEmbedded))
	chunks.WithLabelValues("stored").Set(float64(stats.ChunksStored))

	failures.WithLabelValues("embedding").Set(float64(stats.EmbeddingFailures))
	failures.WithLabelValues("flush").Set(float64(stats.FlushFailures))

	duration.Set(stats.Duration().Seconds())
	if !stats.RunEnd.IsZero() {
		finished.Set(float64(stats.RunEnd.Unix()))
	}
	embedMs.Set(stats.AvgEmbedMs())
	workers.Set(float64(stats.FinalWorkers))
	if stats.Store != nil {
		stored.Set(float64(stats.Store.TotalChunks))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
