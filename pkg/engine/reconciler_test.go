package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func newTestReconciler(store *fakeStore) *Reconciler {
	return NewReconciler(store, time.Second, nopLog())
}

func TestReconciler_MarkExecuted(t *testing.T) {
	store := &fakeStore{}
	r := newTestReconciler(store)
	m := testMatch(t)
	m.SettlementRef = common.BytesToHash([]byte("tx-1"))

	r.MarkExecuted(context.Background(), m)

	if len(store.patches) != 2 {
		t.Fatalf("got %d patches, want 2 (both orders updated)", len(store.patches))
	}
	for _, id := range []string{m.MakerOrderID, m.TakerOrderID} {
		ps := store.patchesFor(id)
		if len(ps) != 1 {
			t.Fatalf("order %s: %d patches, want 1", id, len(ps))
		}
		upd := ps[0].upd
		if upd.Status != OrderFilled {
			t.Errorf("order %s status = %s, want filled", id, upd.Status)
		}
		if upd.SettlementRef != m.SettlementRef.Hex() {
			t.Errorf("order %s settlementRef = %q, want %q", id, upd.SettlementRef, m.SettlementRef.Hex())
		}
	}
}

func TestReconciler_FilledAmountClamped(t *testing.T) {
	store := &fakeStore{}
	r := newTestReconciler(store)
	m := testMatch(t)
	m.SettlementRef = common.BytesToHash([]byte("tx-1"))
	// Maker already 80% filled; adding the execution amount would
	// overshoot amountIn.
	m.MakerOrder.FilledAmount = big.NewInt(40)

	r.MarkExecuted(context.Background(), m)

	upd := store.patchesFor(m.MakerOrderID)[0].upd
	if upd.FilledAmount.Cmp(m.MakerOrder.AmountIn) != 0 {
		t.Errorf("filledAmount = %s, want clamped to amountIn %s",
			upd.FilledAmount, m.MakerOrder.AmountIn)
	}
}

func TestReconciler_MarkFailed(t *testing.T) {
	store := &fakeStore{}
	r := newTestReconciler(store)
	m := testMatch(t)
	m.Status = MatchFailed
	m.FailureReason = "settlement failed (reverted): SPL"

	r.MarkFailed(context.Background(), m)

	if len(store.patches) != 2 {
		t.Fatalf("got %d patches, want 2", len(store.patches))
	}
	for _, p := range store.patches {
		if p.upd.Status != OrderPending {
			t.Errorf("order %s status = %s, want pending (failed settlement reverts orders)", p.id, p.upd.Status)
		}
		if p.upd.FailureReason != m.FailureReason {
			t.Errorf("order %s failureReason = %q, want %q", p.id, p.upd.FailureReason, m.FailureReason)
		}
	}
}

func TestReconciler_SecondWriteAttemptedAfterFirstFails(t *testing.T) {
	m := testMatch(t)
	store := &fakeStore{patchErr: map[string]error{m.MakerOrderID: errors.New("store down")}}
	r := newTestReconciler(store)
	m.SettlementRef = common.BytesToHash([]byte("tx-1"))

	r.MarkExecuted(context.Background(), m)

	if len(store.patchesFor(m.TakerOrderID)) != 1 {
		t.Error("taker order update skipped after maker write failed")
	}
}
