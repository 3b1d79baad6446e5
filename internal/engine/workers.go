package engine

import "github.com/satnambhatt/ai-engine/internal/autotune"

// ThermalConfig configures the throttle hysteresis.
type ThermalConfig struct {
	// Throttle engages the hold above this temperature in °C.
	Throttle float64
	// Recover releases the hold below this temperature in °C.
	Recover float64
	// HeldWorkers is the pool size while the hold is engaged.
	HeldWorkers int
}

// WorkerPlan is the embedding pool size for the next files.
type WorkerPlan struct {
	Workers   int
	Throttled bool
}

type planChange int

const (
	planSteady planChange = iota
	planThrottled
	planRecovered
)

// nextPlan applies the thermal hysteresis on top of a fresh decision.
// Once engaged, the hold persists until the temperature drops below
// Recover, including across samples with no temperature reading.
func nextPlan(cur WorkerPlan, d autotune.Decision, th ThermalConfig, minWorkers, maxWorkers int) (WorkerPlan, planChange) {
	held := clampWorkers(th.HeldWorkers, minWorkers, maxWorkers)

	temp, ok := d.Metrics.TempC.Get()
	switch {
	case ok && temp > th.Throttle:
		change := planSteady
		if !cur.Throttled {
			change = planThrottled
		}
		return WorkerPlan{Workers: held, Throttled: true}, change
	case cur.Throttled && ok && temp < th.Recover:
		return WorkerPlan{Workers: clampWorkers(d.Workers, minWorkers, maxWorkers)}, planRecovered
	case cur.Throttled:
		return WorkerPlan{Workers: held, Throttled: true}, planSteady
	default:
		return WorkerPlan{Workers: clampWorkers(d.Workers, minWorkers, maxWorkers)}, planSteady
	}
}

func clampWorkers(v, lo, hi int) int {
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
