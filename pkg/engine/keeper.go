package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arbelos/dexkeeper/pkg/util"
)

// Stats is a snapshot of keeper progress for the ops API.
type Stats struct {
	CyclesRun     int          `json:"cycles_run"`
	TotalProposed int          `json:"total_proposed"`
	TotalDenied   int          `json:"total_denied"`
	TotalExecuted int          `json:"total_executed"`
	TotalFailed   int          `json:"total_failed"`
	TotalSkipped  int          `json:"total_skipped"`
	LastCycle     CycleSummary `json:"last_cycle"`
}

// Keeper drives matching cycles forever on a fixed interval. The next
// tick is armed only after the current cycle returns, so two cycles can
// never overlap and race on the same orders. A panic escaping a cycle is
// contained here and never terminates the loop.
//
// Deployment constraint: exactly one keeper per order store. Two keepers
// sharing a store can both match and settle the same order; nothing in
// the engine locks across processes.
type Keeper struct {
	cycle    *Cycle
	clock    util.Clock
	interval time.Duration
	log      *zap.SugaredLogger

	mu    sync.Mutex
	stats Stats
}

func NewKeeper(cycle *Cycle, clock util.Clock, interval time.Duration, log *zap.SugaredLogger) *Keeper {
	return &Keeper{cycle: cycle, clock: clock, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. Shutdown is graceful: an in-flight
// cycle always runs to completion before the loop exits.
func (k *Keeper) Run(ctx context.Context) error {
	k.log.Infow("keeper_started", "interval_ms", k.interval.Milliseconds())
	for {
		k.runOnce(ctx)
		select {
		case <-ctx.Done():
			k.log.Infow("keeper_stopped", "cycles_run", k.Stats().CyclesRun)
			return ctx.Err()
		case <-k.clock.After(k.interval):
		}
	}
}

func (k *Keeper) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Errorw("cycle_panicked", "panic", fmt.Sprint(r))
		}
	}()

	summary := k.cycle.Run(ctx)

	k.mu.Lock()
	k.stats.CyclesRun++
	k.stats.TotalProposed += summary.Proposed
	k.stats.TotalDenied += summary.Denied
	k.stats.TotalExecuted += summary.Executed
	k.stats.TotalFailed += summary.Failed
	k.stats.TotalSkipped += summary.Skipped
	k.stats.LastCycle = summary
	k.mu.Unlock()
}

func (k *Keeper) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stats
}
