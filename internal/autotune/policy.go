package autotune

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/satnambhatt/ai-engine/internal/config"
)

// Policy holds the worker bounds and the thresholds Decide applies.
type Policy struct {
	Min      int
	Max      int
	Baseline int

	LoadLow  float64 // load/cores below this adds a worker
	LoadHigh float64 // load/cores above this removes one

	MemHigh uint64 // free bytes above this allows baseline+1
	MemLow  uint64 // free bytes below this removes a worker

	TempCaution  float64 // above this never exceed baseline
	TempThrottle float64 // above this drop below baseline
}

// PolicyFromConfig maps the workers configuration onto a Policy.
func PolicyFromConfig(cfg config.WorkersConfig) Policy {
	return Policy{
		Min:          cfg.Min,
		Max:          cfg.Max,
		Baseline:     cfg.Baseline,
		LoadLow:      cfg.LoadLow,
		LoadHigh:     cfg.LoadHigh,
		MemHigh:      uint64(cfg.MemHigh),
		MemLow:       uint64(cfg.MemLow),
		TempCaution:  cfg.TempCaution,
		TempThrottle: cfg.TempThrottle,
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Workers int
	Reasons []string
	Metrics Metrics
}

// Decide computes the worker count for a sample. Starting from the
// baseline, load and memory nudge it by one, temperature caps it, and
// the result is clamped to [Min, Max]. Decide never panics; on an
// internal failure it returns the clamped baseline.
func Decide(p Policy, m Metrics) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{
				Workers: clamp(p.Baseline, p.Min, p.Max),
				Reasons: []string{fmt.Sprintf("fallback to baseline: %v", r)},
				Metrics: m,
			}
		}
	}()

	w := p.Baseline
	var reasons []string

	if load, ok := m.Load1.Get(); ok && load > 0 && m.Cores > 0 {
		ratio := load / float64(m.Cores)
		switch {
		case ratio < p.LoadLow:
			w++
			reasons = append(reasons, fmt.Sprintf("low load %.2f/%d", load, m.Cores))
		case ratio > p.LoadHigh:
			w--
			reasons = append(reasons, fmt.Sprintf("high load %.2f/%d", load, m.Cores))
		}
	}

	if free, ok := m.FreeMemBytes.Get(); ok {
		switch {
		case free > p.MemHigh:
			w = min(w+1, p.Baseline+1)
			reasons = append(reasons, "free memory "+humanize.Bytes(free))
		case free < p.MemLow:
			w--
			reasons = append(reasons, "low memory "+humanize.Bytes(free))
		}
	}

	if temp, ok := m.TempC.Get(); ok {
		switch {
		case temp > p.TempThrottle:
			w = min(w-1, p.Baseline-1)
			reasons = append(reasons, fmt.Sprintf("hot %.0fC", temp))
		case temp > p.TempCaution:
			w = min(w, p.Baseline)
			reasons = append(reasons, fmt.Sprintf("warm %.0fC", temp))
		}
	}

	return Decision{Workers: clamp(w, p.Min, p.Max), Reasons: reasons, Metrics: m}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
