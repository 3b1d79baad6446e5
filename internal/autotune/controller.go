package autotune

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Controller samples the host and applies a Policy.
type Controller struct {
	policy  Policy
	sampler Sampler
	logger  *slog.Logger
}

// NewController creates a Controller. A nil sampler uses ProcSampler.
func NewController(policy Policy, sampler Sampler, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if sampler == nil {
		sampler = NewProcSampler(logger)
	}
	return &Controller{policy: policy, sampler: sampler, logger: logger}
}

// Policy returns the policy in use.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Recommend samples the host and returns the worker decision.
func (c *Controller) Recommend(ctx context.Context) Decision {
	d := Decide(c.policy, c.sampler.Sample(ctx))

	attrs := []any{
		slog.Int("workers", d.Workers),
		slog.Int("cores", d.Metrics.Cores),
		slog.String("reasons", strings.Join(d.Reasons, "; ")),
	}
	if v, ok := d.Metrics.Load1.Get(); ok {
		attrs = append(attrs, slog.Float64("load1", v))
	}
	if v, ok := d.Metrics.FreeMemBytes.Get(); ok {
		attrs = append(attrs, slog.String("free_mem", humanize.Bytes(v)))
	}
	if v, ok := d.Metrics.TempC.Get(); ok {
		attrs = append(attrs, slog.Float64("temp_c", v))
	}
	c.logger.Info("autotune_decision", attrs...)

	return d
}
