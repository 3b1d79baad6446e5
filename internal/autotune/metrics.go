// Package autotune chooses how many embedding workers to run from the
// host's load, free memory and temperature.
//
// Sampling and deciding are separate: a Sampler reads the host, where
// every reading may be absent, and Decide is a pure function of a Policy
// and the sampled Metrics.
package autotune

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

// Optional is a reading that may be unavailable.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a present reading.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// None returns an absent reading.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// Metrics is one sample of the host.
type Metrics struct {
	Load1        Optional[float64] // 1-minute load average
	Cores        int
	FreeMemBytes Optional[uint64] // Available memory
	TempC        Optional[float64] // Hottest thermal zone, Celsius
}

// Sampler reads host metrics. Implementations never fail; unreadable
// values are left absent.
type Sampler interface {
	Sample(ctx context.Context) Metrics
}

// ProcSampler reads /proc and /sys through prometheus/procfs.
type ProcSampler struct {
	proc    procfs.FS
	sys     sysfs.FS
	procErr error
	sysErr  error
	logger  *slog.Logger
}

var _ Sampler = (*ProcSampler)(nil)

// NewProcSampler opens the default proc and sys mounts. Missing mounts
// (non-Linux hosts, containers) only disable the affected readings.
func NewProcSampler(logger *slog.Logger) *ProcSampler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProcSampler{logger: logger}
	s.proc, s.procErr = procfs.NewDefaultFS()
	s.sys, s.sysErr = sysfs.NewDefaultFS()
	return s
}

// Sample implements Sampler.
func (s *ProcSampler) Sample(_ context.Context) Metrics {
	m := Metrics{Cores: runtime.NumCPU()}

	if s.procErr == nil {
		if avg, err := s.proc.LoadAvg(); err == nil {
			m.Load1 = Some(avg.Load1)
		} else {
			s.logger.Debug("load_read_failed", slog.String("error", err.Error()))
		}

		if mem, err := s.proc.Meminfo(); err == nil && mem.MemAvailableBytes != nil {
			m.FreeMemBytes = Some(*mem.MemAvailableBytes)
		} else if err != nil {
			s.logger.Debug("meminfo_read_failed", slog.String("error", err.Error()))
		}
	}

	if s.sysErr == nil {
		if zones, err := s.sys.ClassThermalZoneStats(); err == nil {
			var hottest Optional[float64]
			for _, z := range zones {
				c := float64(z.Temp) / 1000
				if !hottest.Valid || c > hottest.Value {
					hottest = Some(c)
				}
			}
			m.TempC = hottest
		} else {
			s.logger.Debug("thermal_read_failed", slog.String("error", err.Error()))
		}
	}

	return m
}

// StaticSampler returns the same metrics every time.
type StaticSampler struct {
	Metrics Metrics
}

var _ Sampler = (*StaticSampler)(nil)

// Sample implements Sampler.
func (s *StaticSampler) Sample(context.Context) Metrics {
	return s.Metrics
}
