// Package housekeeping runs the periodic maintenance the request path relies
// on: dropping lapsed flows and releasing equipment whose hold ran out. It
// also persists active flows across restarts.
package housekeeping

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = time.Minute

// FlowSweeper drops expired flows.
type FlowSweeper interface {
	Sweep() int
}

// EquipmentExpirer releases requests past their hard expiry.
type EquipmentExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Result counts what one sweep removed.
type Result struct {
	Flows     int
	Equipment int
}

// Janitor sweeps flows and equipment on a fixed interval.
type Janitor struct {
	flows     FlowSweeper
	equipment EquipmentExpirer
	interval  time.Duration
	logger    *slog.Logger
}

// NewJanitor builds a janitor. Either collaborator may be nil.
func NewJanitor(flows FlowSweeper, equipment EquipmentExpirer, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		flows:     flows,
		equipment: equipment,
		interval:  interval,
		logger:    logger.With("component", "janitor"),
	}
}

// Interval returns the sweep period.
func (j *Janitor) Interval() time.Duration { return j.interval }

// Run sweeps every interval until ctx is cancelled, then returns nil.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.InfoContext(ctx, "janitor started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			j.logger.InfoContext(context.WithoutCancel(ctx), "janitor stopped")
			return nil
		case <-ticker.C:
			j.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one sweep. Equipment failures are logged and retried on the
// next tick.
func (j *Janitor) SweepOnce(ctx context.Context) Result {
	var res Result
	if j.flows != nil {
		res.Flows = j.flows.Sweep()
	}
	if j.equipment != nil {
		released, err := j.equipment.ExpireStale(ctx)
		if err != nil {
			j.logger.WarnContext(ctx, "equipment sweep failed", "error", err)
		}
		res.Equipment = released
	}
	if res.Flows > 0 || res.Equipment > 0 {
		j.logger.InfoContext(ctx, "sweep completed", "flows_expired", res.Flows, "equipment_released", res.Equipment)
	}
	return res
}
