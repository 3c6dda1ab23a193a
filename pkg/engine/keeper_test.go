package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/arbelos/dexkeeper/pkg/util"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// panicStore simulates a store whose fetch path blows up entirely.
type panicStore struct {
	mu    sync.Mutex
	calls int
}

func (s *panicStore) ListPendingOrders(context.Context) ([]*Order, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	panic("store exploded")
}

func (s *panicStore) PatchOrderStatus(context.Context, string, StatusUpdate) error {
	return nil
}

func (s *panicStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newKeeperFixture(store OrderStore, clock util.Clock) *Keeper {
	oracle := &fakeOracle{}
	gate := NewGate(oracle, time.Second, nopLog())
	rec := NewReconciler(store, time.Second, nopLog())
	exec := NewExecutor(&fakeVenue{state: defaultPoolState()}, oracle, newMemJournal(), 500, time.Second, nopLog())
	cycle := NewCycle(store, gate, exec, rec, clock,
		MatcherConfig{MinOrderSize: big.NewInt(1), MaxMatches: 10}, time.Second, nopLog())
	return NewKeeper(cycle, clock, time.Minute, nopLog())
}

func TestKeeper_RunAfterCompletionScheduling(t *testing.T) {
	clock := util.NewManualClock(baseTime)
	keeper := newKeeperFixture(&fakeStore{}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		keeper.Run(ctx)
	}()

	// First cycle fires immediately, before any tick.
	waitFor(t, func() bool { return keeper.Stats().CyclesRun == 1 }, "first cycle never ran")

	// No further cycle until the interval elapses after completion.
	time.Sleep(20 * time.Millisecond)
	if got := keeper.Stats().CyclesRun; got != 1 {
		t.Fatalf("cycles = %d before tick, want 1 (no free-running timer)", got)
	}

	clock.Advance(time.Minute)
	waitFor(t, func() bool { return keeper.Stats().CyclesRun == 2 }, "second cycle never ran")

	cancel()
	wg.Wait()
}

func TestKeeper_SurvivesCyclePanic(t *testing.T) {
	clock := util.NewManualClock(baseTime)
	store := &panicStore{}
	keeper := newKeeperFixture(store, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		keeper.Run(ctx)
		close(done)
	}()

	// Each cycle panics; the scheduler must keep ticking regardless.
	waitFor(t, func() bool {
		clock.Advance(time.Minute)
		return store.callCount() >= 3
	}, "keeper stopped scheduling after cycle panics")

	select {
	case <-done:
		t.Fatal("keeper terminated after cycle panic")
	default:
	}

	cancel()
	<-done
}

func TestKeeper_GracefulShutdown(t *testing.T) {
	clock := util.NewManualClock(baseTime)
	keeper := newKeeperFixture(&fakeStore{}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- keeper.Run(ctx) }()

	waitFor(t, func() bool { return keeper.Stats().CyclesRun == 1 }, "first cycle never ran")
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop after cancellation")
	}
}

func TestKeeper_StatsAccumulate(t *testing.T) {
	buy := buyOrder("buy1", 10, 100, baseTime)
	sell := sellOrder("sell1", 8, 50, baseTime)
	store := &fakeStore{orders: []*Order{buy, sell}}
	clock := util.NewManualClock(baseTime)
	keeper := newKeeperFixture(store, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go keeper.Run(ctx)

	waitFor(t, func() bool { return keeper.Stats().CyclesRun == 1 }, "first cycle never ran")

	stats := keeper.Stats()
	if stats.TotalProposed != 1 || stats.TotalExecuted != 1 {
		t.Errorf("stats = %+v, want proposed=1 executed=1", stats)
	}
	if stats.LastCycle.Executed != 1 {
		t.Errorf("last cycle executed = %d, want 1", stats.LastCycle.Executed)
	}
}
