package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	poolX  = common.HexToAddress("0x0000000000000000000000000000000000000ccc")

	baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func makerAddr(id string) common.Address {
	return common.BytesToAddress(append([]byte("maker-"), id...))
}

// buyOrder acquires tokenA (the pair's token0 side) by offering tokenB.
func buyOrder(id string, price int64, amount int64, createdAt time.Time) *Order {
	return &Order{
		ID:           id,
		Maker:        makerAddr(id),
		TokenIn:      tokenB,
		TokenOut:     tokenA,
		AmountIn:     big.NewInt(amount),
		Price:        decimal.NewFromInt(price),
		Type:         OrderTypeLimit,
		Expiry:       createdAt.Add(24 * time.Hour),
		Pool:         poolX,
		CreatedAt:    createdAt,
		Status:       OrderPending,
		FilledAmount: big.NewInt(0),
	}
}

// sellOrder is the mirror: offers tokenA for tokenB.
func sellOrder(id string, price int64, amount int64, createdAt time.Time) *Order {
	o := buyOrder(id, price, amount, createdAt)
	o.TokenIn, o.TokenOut = tokenA, tokenB
	return o
}

type patchCall struct {
	id  string
	upd StatusUpdate
}

type fakeStore struct {
	mu       sync.Mutex
	orders   []*Order
	listErr  error
	patchErr map[string]error
	patches  []patchCall
}

func (s *fakeStore) ListPendingOrders(_ context.Context) ([]*Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.orders, nil
}

func (s *fakeStore) PatchOrderStatus(_ context.Context, id string, upd StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patchCall{id: id, upd: upd})
	if s.patchErr != nil {
		return s.patchErr[id]
	}
	return nil
}

func (s *fakeStore) patchesFor(id string) []patchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []patchCall
	for _, p := range s.patches {
		if p.id == id {
			out = append(out, p)
		}
	}
	return out
}

type fakeOracle struct {
	denied     map[string]bool  // "from->to" pairs answered false
	checkErr   map[string]error // "from->to" pairs that error
	panicPairs map[string]bool  // "from->to" pairs that panic
	unverified map[common.Address]bool
	notifyErr  error
	notified   chan common.Address // receives "from" of each notify
}

func transferKey(from, to common.Address) string {
	return from.Hex() + "->" + to.Hex()
}

func (o *fakeOracle) CanTransfer(_ context.Context, _, from, to common.Address, _ *big.Int) (bool, error) {
	k := transferKey(from, to)
	if o.panicPairs[k] {
		panic("oracle blew up")
	}
	if err := o.checkErr[k]; err != nil {
		return false, err
	}
	return !o.denied[k], nil
}

func (o *fakeOracle) IsVerified(_ context.Context, _, party common.Address) (bool, error) {
	return !o.unverified[party], nil
}

func (o *fakeOracle) NotifyTransfer(_ context.Context, _, from, _ common.Address, _ *big.Int) error {
	if o.notified != nil {
		o.notified <- from
	}
	return o.notifyErr
}

type fakeVenue struct {
	mu       sync.Mutex
	state    PoolState
	stateErr error
	swapErr  error
	// loseReceipt makes Swap execute but report a receipt timeout carrying
	// the tx hash, the way a real venue surfaces a send whose fate is
	// unknown.
	loseReceipt bool
	outcomes    map[common.Hash]TxOutcome
	outcomeErr  error
	swaps       []SwapParams
}

func defaultPoolState() PoolState {
	return PoolState{
		SqrtPriceX96: big.NewInt(1_000_000),
		Token0:       tokenA,
		Token1:       tokenB,
	}
}

func (v *fakeVenue) PriceState(_ context.Context, _ common.Address) (PoolState, error) {
	if v.stateErr != nil {
		return PoolState{}, v.stateErr
	}
	return v.state, nil
}

func (v *fakeVenue) Swap(_ context.Context, p SwapParams) (common.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.swapErr != nil {
		return common.Hash{}, v.swapErr
	}
	v.swaps = append(v.swaps, p)
	tx := common.BytesToHash([]byte(fmt.Sprintf("tx-%d", len(v.swaps))))
	if v.loseReceipt {
		return common.Hash{}, &SettlementError{
			Kind:  SettlementNetwork,
			Tx:    tx,
			Cause: errors.New("awaiting receipt: context deadline exceeded"),
		}
	}
	return tx, nil
}

func (v *fakeVenue) SwapOutcome(_ context.Context, tx common.Hash) (TxOutcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.outcomeErr != nil {
		return TxPending, v.outcomeErr
	}
	if out, ok := v.outcomes[tx]; ok {
		return out, nil
	}
	return TxPending, nil
}

func (v *fakeVenue) swapCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.swaps)
}

type memJournal struct {
	mu        sync.Mutex
	entries   map[common.Hash]SettlementRecord
	lookupErr error
	recordErr error
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(map[common.Hash]SettlementRecord)}
}

func (j *memJournal) Lookup(ref common.Hash) (SettlementRecord, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lookupErr != nil {
		return SettlementRecord{}, false, j.lookupErr
	}
	rec, ok := j.entries[ref]
	return rec, ok, nil
}

func (j *memJournal) Record(ref common.Hash, rec SettlementRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.recordErr != nil {
		return j.recordErr
	}
	j.entries[ref] = rec
	return nil
}

func (j *memJournal) get(ref common.Hash) (SettlementRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.entries[ref]
	return rec, ok
}
