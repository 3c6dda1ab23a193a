package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arbelos/dexkeeper/pkg/util"
)

// CycleSummary counts the outcomes of one matching pass.
type CycleSummary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Orders    int           `json:"orders"`
	Proposed  int           `json:"proposed"`
	Denied    int           `json:"denied"`
	Executed  int           `json:"executed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	FetchErr  string        `json:"fetch_error,omitempty"`
}

// Cycle orchestrates one pass: fetch the open-order snapshot, run the
// matcher, then for each candidate gate → settle → reconcile. Matches are
// processed sequentially, since each settlement moves the pool price the
// next match's parameters depend on, and any failure is contained to its
// own match.
type Cycle struct {
	store        OrderStore
	gate         *Gate
	executor     *Executor // nil when running read-only (no signer key)
	reconciler   *Reconciler
	clock        util.Clock
	matcherCfg   MatcherConfig
	storeTimeout time.Duration
	log          *zap.SugaredLogger
}

func NewCycle(store OrderStore, gate *Gate, executor *Executor, reconciler *Reconciler,
	clock util.Clock, matcherCfg MatcherConfig, storeTimeout time.Duration, log *zap.SugaredLogger) *Cycle {
	return &Cycle{
		store:        store,
		gate:         gate,
		executor:     executor,
		reconciler:   reconciler,
		clock:        clock,
		matcherCfg:   matcherCfg,
		storeTimeout: storeTimeout,
		log:          log,
	}
}

// Run executes one full matching cycle. The order set is fetched once and
// treated as an immutable snapshot; orders are never re-fetched mid-cycle.
func (c *Cycle) Run(ctx context.Context) CycleSummary {
	started := c.clock.Now()
	summary := CycleSummary{StartedAt: started}

	orders, err := c.fetchOrders(ctx)
	if err != nil {
		summary.FetchErr = err.Error()
		summary.Duration = c.clock.Now().Sub(started)
		c.log.Errorw("order_fetch_failed", "err", err)
		return summary
	}
	summary.Orders = len(orders)

	// A denied pairing is not consumed: the matcher is re-run with that
	// pairing excluded so the buy order can cross the next compatible
	// sell within the same cycle. Settled and failed orders drop out of
	// the working set until the next cycle.
	excluded := make(map[string]bool)
	settledOut := make(map[string]bool)

	for {
		remaining := 0
		if c.matcherCfg.MaxMatches > 0 {
			remaining = c.matcherCfg.MaxMatches - summary.Proposed
			if remaining <= 0 {
				break
			}
		}

		avail := orders[:0:0]
		for _, o := range orders {
			if !settledOut[o.ID] {
				avail = append(avail, o)
			}
		}

		matches := MatchOrders(avail, started, MatcherConfig{
			MinOrderSize: c.matcherCfg.MinOrderSize,
			MaxMatches:   remaining,
			Excluded:     excluded,
		})
		if len(matches) == 0 {
			break
		}
		summary.Proposed += len(matches)

		for _, m := range matches {
			if c.processMatch(ctx, m, &summary) == outcomeDenied {
				excluded[PairKey(m.MakerOrderID, m.TakerOrderID)] = true
			} else {
				settledOut[m.MakerOrderID] = true
				settledOut[m.TakerOrderID] = true
			}
		}
	}

	summary.Duration = c.clock.Now().Sub(started)
	c.log.Infow("cycle_complete",
		"orders", summary.Orders,
		"proposed", summary.Proposed,
		"denied", summary.Denied,
		"executed", summary.Executed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration_ms", summary.Duration.Milliseconds())
	return summary
}

func (c *Cycle) fetchOrders(ctx context.Context) ([]*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.ListPendingOrders(ctx)
}

type outcome int

const (
	outcomeDenied outcome = iota
	outcomeSkipped
	outcomeExecuted
	outcomeFailed
)

// processMatch runs one match through the gated pipeline. A panic here is
// contained to this match: the remaining candidates still get processed.
func (c *Cycle) processMatch(ctx context.Context, m *Match, summary *CycleSummary) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcomeFailed
			summary.Failed++
			c.log.Errorw("match_panicked",
				"match_id", m.ID,
				"maker_order", m.MakerOrderID,
				"taker_order", m.TakerOrderID,
				"panic", fmt.Sprint(r))
		}
	}()

	if !c.gate.Check(ctx, m) {
		// Denied pairings are discarded, not failed: the orders stay
		// untouched and may pass once compliance state changes.
		summary.Denied++
		return outcomeDenied
	}

	if c.executor == nil {
		summary.Skipped++
		c.log.Warnw("settlement_skipped_read_only",
			"match_id", m.ID,
			"maker_order", m.MakerOrderID,
			"taker_order", m.TakerOrderID)
		return outcomeSkipped
	}

	tx, err := c.executor.Execute(ctx, m)
	if err != nil {
		m.Status = MatchFailed
		m.FailureReason = err.Error()
		c.reconciler.MarkFailed(ctx, m)
		summary.Failed++
		c.log.Warnw("settlement_failed",
			"match_id", m.ID,
			"maker_order", m.MakerOrderID,
			"taker_order", m.TakerOrderID,
			"err", err)
		return outcomeFailed
	}

	m.Status = MatchExecuted
	m.SettlementRef = tx
	c.reconciler.MarkExecuted(ctx, m)
	summary.Executed++
	c.log.Infow("match_executed",
		"match_id", m.ID,
		"maker_order", m.MakerOrderID,
		"taker_order", m.TakerOrderID,
		"amount", m.ExecutionAmount.String(),
		"price", m.ExecutionPrice.String(),
		"tx", tx.Hex())
	return outcomeExecuted
}
