package agent

import (
	"context"
	"fmt"
	"time"

	"axiapac.com/devicesync/device"
	"golang.org/x/sync/errgroup"
)

// Orchestrator syncs a device list. One device failing never stops the
// others.
type Orchestrator struct {
	rc     *RunContext
	worker *SyncWorker
}

func NewOrchestrator(rc *RunContext) *Orchestrator {
	return &Orchestrator{rc: rc, worker: NewSyncWorker(rc)}
}

func (o *Orchestrator) Run(ctx context.Context, devices []device.Descriptor) SyncSummary {
	start := time.Now()
	if o.rc.Settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.rc.Settings.RunTimeout)
		defer cancel()
	}

	total := len(devices)
	o.rc.Logger.Info().Int("devices", total).Msg("[SYNC] starting run")

	outcomes := make([]SyncOutcome, total)
	if o.rc.Settings.Concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(o.rc.Settings.Concurrency)
		for idx, d := range devices {
			idx, d := idx, d
			g.Go(func() error {
				outcomes[idx] = o.runOne(ctx, idx, total, d)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for idx, d := range devices {
			outcomes[idx] = o.runOne(ctx, idx, total, d)
		}
	}

	summary := summarize(o.rc.RunID, outcomes)
	summary.Duration = time.Since(start)

	o.rc.Logger.Info().
		Int("total", summary.TotalDevices).
		Int("success", summary.SuccessCount).
		Int("failed", summary.FailureCount).
		Dur("duration", summary.Duration).
		Msgf("[SYNC] done. Total: %d, Success: %d, Failed: %d", summary.TotalDevices, summary.SuccessCount, summary.FailureCount)

	return summary
}

func (o *Orchestrator) runOne(ctx context.Context, idx, total int, d device.Descriptor) SyncOutcome {
	log := o.rc.Logger.With().Str("device_id", d.ID).Str("device", d.Name).Str("ip", d.IP).Logger()

	var out SyncOutcome
	if err := ctx.Err(); err != nil {
		out = SyncOutcome{DeviceID: d.ID, DeviceName: d.Name}
		out.enter(StateIdle)
		out.fail(KindCancelled, err)
	} else {
		out = o.safeRun(ctx, d)
	}

	if out.Succeeded {
		ev := log.Info()
		if out.ClearWarning != "" {
			ev = log.Warn().Str("clear_warning", out.ClearWarning)
		}
		ev.Int("attendance", out.AttendanceCount).
			Int("users", out.UserCount).
			Bool("uploaded", out.Uploaded).
			Bool("cleared", out.Cleared).
			Dur("duration", out.Duration).
			Msgf("[SYNC] (%d/%d) %s ok", idx+1, total, d.Name)
	} else {
		log.Error().
			Str("kind", string(out.ErrorKind)).
			Str("state", string(out.FailedAt())).
			Str("error", out.ErrorDetail).
			Msgf("[SYNC] (%d/%d) %s failed", idx+1, total, d.Name)
	}
	return out
}

// safeRun keeps a panic in one device's workflow from taking the batch
// down with it.
func (o *Orchestrator) safeRun(ctx context.Context, d device.Descriptor) (out SyncOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out.fail(KindRead, fmt.Errorf("device %s: panic: %v", d.ID, r))
		}
	}()
	out = SyncOutcome{DeviceID: d.ID, DeviceName: d.Name}
	return o.worker.Run(ctx, d)
}
