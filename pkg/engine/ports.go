package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderStore is the engine's only read/write dependency on persisted order
// state. The keeper never holds authoritative order state itself.
type OrderStore interface {
	ListPendingOrders(ctx context.Context) ([]*Order, error)
	PatchOrderStatus(ctx context.Context, id string, upd StatusUpdate) error
}

// ComplianceOracle answers whether a transfer between two parties is
// permitted and whether a party's identity is verified. Read-only except
// for NotifyTransfer, which reports a realized transfer after settlement.
type ComplianceOracle interface {
	CanTransfer(ctx context.Context, module, from, to common.Address, amount *big.Int) (bool, error)
	IsVerified(ctx context.Context, registry, party common.Address) (bool, error)
	NotifyTransfer(ctx context.Context, module, from, to common.Address, amount *big.Int) error
}

// TxOutcome is the fate of a previously sent settlement transaction.
type TxOutcome int

const (
	// TxPending: no receipt yet, the transaction may still land.
	TxPending TxOutcome = iota
	// TxConfirmed: mined with a successful status.
	TxConfirmed
	// TxReverted: mined and reverted.
	TxReverted
)

// SettlementVenue executes swaps against an AMM pool. Once a swap succeeds
// the chain is the source of truth for that settlement.
type SettlementVenue interface {
	PriceState(ctx context.Context, pool common.Address) (PoolState, error)
	Swap(ctx context.Context, p SwapParams) (common.Hash, error)
	// SwapOutcome checks the receipt of an earlier swap transaction whose
	// fate was unknown when it was sent.
	SwapOutcome(ctx context.Context, tx common.Hash) (TxOutcome, error)
}

// SettlementRecord is one journal entry. Settled means the transaction
// was seen mined successfully; an unsettled record marks an in-flight
// send whose receipt never arrived, which must be resolved before the
// pairing may swap again.
type SettlementRecord struct {
	Tx      common.Hash
	Settled bool
}

// SettlementJournal records settlement transactions by idempotency key so
// a retried execution cannot double-swap a pairing whose earlier attempt
// landed, or may still land.
type SettlementJournal interface {
	Lookup(ref common.Hash) (SettlementRecord, bool, error)
	Record(ref common.Hash, rec SettlementRecord) error
}
