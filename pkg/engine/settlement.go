package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const bpsDenominator = 10000

// Executor computes swap parameters from live pool state and drives the
// settlement venue. One executor call settles one match; failures surface
// as *SettlementError and never abort the surrounding cycle.
type Executor struct {
	venue       SettlementVenue
	oracle      ComplianceOracle
	journal     SettlementJournal
	slippageBps int64
	timeout     time.Duration
	log         *zap.SugaredLogger
}

func NewExecutor(venue SettlementVenue, oracle ComplianceOracle, journal SettlementJournal,
	slippageBps int64, timeout time.Duration, log *zap.SugaredLogger) *Executor {
	return &Executor{
		venue:       venue,
		oracle:      oracle,
		journal:     journal,
		slippageBps: slippageBps,
		timeout:     timeout,
		log:         log,
	}
}

// IdempotencyRef derives a deterministic reference for one match so a
// retried execution maps onto the same journal entry. Match IDs are
// random per cycle, so the ref is built from the pairing itself. Each
// field is length-prefixed so variable-length order IDs cannot collide
// across field boundaries.
func IdempotencyRef(m *Match) common.Hash {
	var buf bytes.Buffer
	for _, field := range [][]byte{
		[]byte(m.MakerOrderID),
		[]byte(m.TakerOrderID),
		m.ExecutionAmount.Bytes(),
		m.Pool.Bytes(),
	} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(field)))
		buf.Write(n[:])
		buf.Write(field)
	}
	return crypto.Keccak256Hash(buf.Bytes())
}

// Execute settles one match: read pool state, derive swap direction and a
// slippage-bounded price limit, swap with the taker as recipient, then
// best-effort notify compliance of the realized transfer.
func (e *Executor) Execute(ctx context.Context, m *Match) (common.Hash, error) {
	ref := IdempotencyRef(m)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// A journal hit means an earlier attempt already sent a transaction
	// for this pairing. Settle from the record rather than swapping twice.
	if rec, ok, err := e.journal.Lookup(ref); err != nil {
		e.log.Warnw("journal_lookup_failed", "match_id", m.ID, "err", err)
	} else if ok {
		settled, err := e.resolveJournaled(ctx, m, ref, rec)
		if err != nil {
			return common.Hash{}, err
		}
		if settled != (common.Hash{}) {
			return settled, nil
		}
		// The journaled transaction reverted; a fresh swap is safe.
	}

	state, err := e.venue.PriceState(ctx, m.Pool)
	if err != nil {
		return common.Hash{}, NewSettlementError(SettlementNetwork, fmt.Errorf("price state: %w", err))
	}

	zeroForOne, err := swapDirection(m, state)
	if err != nil {
		return common.Hash{}, NewSettlementError(SettlementReverted, err)
	}
	m.ZeroForOne = zeroForOne
	m.SqrtPriceLimitX96 = priceLimit(state.SqrtPriceX96, zeroForOne, e.slippageBps)

	tx, err := e.venue.Swap(ctx, SwapParams{
		Pool:              m.Pool,
		Recipient:         m.Taker,
		ZeroForOne:        zeroForOne,
		AmountIn:          m.ExecutionAmount,
		SqrtPriceLimitX96: m.SqrtPriceLimitX96,
	})
	if err != nil {
		var se *SettlementError
		if !errors.As(err, &se) {
			se = NewSettlementError(SettlementNetwork, err)
		}
		// A failure carrying a tx hash means the transaction was sent and
		// its fate is unknown. Journal the in-flight send so the next
		// attempt resolves its receipt instead of swapping again.
		if se.Tx != (common.Hash{}) {
			if jerr := e.journal.Record(ref, SettlementRecord{Tx: se.Tx}); jerr != nil {
				e.log.Errorw("journal_record_failed", "match_id", m.ID, "tx", se.Tx.Hex(), "err", jerr)
			}
		}
		return common.Hash{}, se
	}

	if err := e.journal.Record(ref, SettlementRecord{Tx: tx, Settled: true}); err != nil {
		e.log.Warnw("journal_record_failed", "match_id", m.ID, "tx", tx.Hex(), "err", err)
	}

	e.notifyTransfer(m)

	return tx, nil
}

// resolveJournaled decides what an existing journal entry means for a new
// attempt. A settled entry replays its transaction outright. An in-flight
// entry is resolved against the chain: confirmed settles the pairing,
// reverted clears the way for a fresh swap (signalled by a zero hash and
// nil error), and anything else keeps the pairing blocked rather than
// risking a second swap.
func (e *Executor) resolveJournaled(ctx context.Context, m *Match, ref common.Hash, rec SettlementRecord) (common.Hash, error) {
	if rec.Settled {
		e.log.Infow("settlement_replayed_from_journal", "match_id", m.ID, "tx", rec.Tx.Hex())
		return rec.Tx, nil
	}

	outcome, err := e.venue.SwapOutcome(ctx, rec.Tx)
	if err != nil {
		return common.Hash{}, NewSettlementError(SettlementNetwork,
			fmt.Errorf("resolving in-flight tx %s: %w", rec.Tx.Hex(), err))
	}
	switch outcome {
	case TxConfirmed:
		if err := e.journal.Record(ref, SettlementRecord{Tx: rec.Tx, Settled: true}); err != nil {
			e.log.Warnw("journal_record_failed", "match_id", m.ID, "tx", rec.Tx.Hex(), "err", err)
		}
		e.log.Infow("settlement_recovered_in_flight", "match_id", m.ID, "tx", rec.Tx.Hex())
		e.notifyTransfer(m)
		return rec.Tx, nil
	case TxReverted:
		return common.Hash{}, nil
	default:
		return common.Hash{}, NewSettlementError(SettlementNetwork,
			fmt.Errorf("tx %s not yet mined, refusing to swap again", rec.Tx.Hex()))
	}
}

// swapDirection: the maker's input token must be one side of the pool;
// selling token0 into the pool is the zeroForOne direction.
func swapDirection(m *Match, state PoolState) (bool, error) {
	switch m.MakerOrder.TokenIn {
	case state.Token0:
		return true, nil
	case state.Token1:
		return false, nil
	default:
		return false, fmt.Errorf("order token %s not in pool %s", m.MakerOrder.TokenIn.Hex(), m.Pool.Hex())
	}
}

// priceLimit moves the current price by the slippage tolerance, downward
// when selling token0 (price falls), upward otherwise. The tolerance is
// quoted on the price, so it is applied to the squared sqrt price and the
// root taken, not to the sqrt price directly (that would double it in
// price terms).
func priceLimit(sqrtPriceX96 *big.Int, zeroForOne bool, slippageBps int64) *big.Int {
	factor := big.NewInt(bpsDenominator - slippageBps)
	if !zeroForOne {
		factor = big.NewInt(bpsDenominator + slippageBps)
	}
	limit := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	limit.Mul(limit, factor)
	limit.Div(limit, big.NewInt(bpsDenominator))
	return limit.Sqrt(limit)
}

// notifyTransfer reports the realized maker→taker transfer to the
// compliance module. Settlement has already happened on-chain, so this is
// strictly best-effort: it runs in the background and a failure is logged,
// never surfaced to the caller.
func (e *Executor) notifyTransfer(m *Match) {
	module := m.MakerOrder.Compliance
	maker, taker := m.Maker, m.Taker
	amount := new(big.Int).Set(m.ExecutionAmount)
	matchID := m.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.oracle.NotifyTransfer(ctx, module, maker, taker, amount); err != nil {
			e.log.Warnw("compliance_notify_failed", "match_id", matchID, "err", err)
		}
	}()
}
