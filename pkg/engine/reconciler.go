package engine

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// Reconciler writes the outcome of a settlement attempt back to the order
// store. Once a swap has landed the chain is the source of truth, so a
// failed status write is logged for out-of-band reconciliation rather than
// propagated; it must never abort the cycle or "roll back" a settlement.
type Reconciler struct {
	store   OrderStore
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewReconciler(store OrderStore, timeout time.Duration, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{store: store, timeout: timeout, log: log}
}

// MarkExecuted moves both participant orders to filled, attaching the
// settlement transaction and advancing filledAmount by the execution
// amount, clamped to amountIn.
func (r *Reconciler) MarkExecuted(ctx context.Context, m *Match) {
	ref := m.SettlementRef.Hex()
	r.patch(ctx, m, m.MakerOrder, StatusUpdate{
		Status:        OrderFilled,
		FilledAmount:  advanceFill(m.MakerOrder, m.ExecutionAmount),
		SettlementRef: ref,
	})
	r.patch(ctx, m, m.TakerOrder, StatusUpdate{
		Status:        OrderFilled,
		FilledAmount:  advanceFill(m.TakerOrder, m.ExecutionAmount),
		SettlementRef: ref,
	})
}

// MarkFailed reverts both participant orders to pending with the failure
// reason attached, leaving them eligible for the next cycle.
func (r *Reconciler) MarkFailed(ctx context.Context, m *Match) {
	upd := StatusUpdate{
		Status:        OrderPending,
		FailureReason: m.FailureReason,
	}
	r.patch(ctx, m, m.MakerOrder, upd)
	r.patch(ctx, m, m.TakerOrder, upd)
}

// patch attempts one order update. Both orders of a match are always
// attempted even if the first write fails.
func (r *Reconciler) patch(ctx context.Context, m *Match, o *Order, upd StatusUpdate) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.store.PatchOrderStatus(ctx, o.ID, upd); err != nil {
		r.log.Errorw("order_status_write_failed",
			"match_id", m.ID,
			"order_id", o.ID,
			"status", upd.Status,
			"err", err)
	}
}

func advanceFill(o *Order, executed *big.Int) *big.Int {
	filled := new(big.Int).Set(executed)
	if o.FilledAmount != nil {
		filled.Add(filled, o.FilledAmount)
	}
	if filled.Cmp(o.AmountIn) > 0 {
		filled.Set(o.AmountIn)
	}
	return filled
}
