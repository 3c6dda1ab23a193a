package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Gate screens a prospective match against the compliance oracle before
// any settlement is attempted. All checks are read-only and idempotent,
// so a denied pairing can safely be retried in a later cycle.
type Gate struct {
	oracle  ComplianceOracle
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewGate(oracle ComplianceOracle, timeout time.Duration, log *zap.SugaredLogger) *Gate {
	return &Gate{oracle: oracle, timeout: timeout, log: log}
}

// Check runs the three compliance legs for a match:
//  1. maker may transfer the execution amount to the taker,
//  2. taker may transfer the counter-amount back to the maker,
//  3. both identities are verified in their registries.
//
// Policy is fail-closed: a false answer, an error, or a timeout all deny
// the match. Denial is a normal outcome, not an error: the pairing is
// simply skipped this cycle and the orders stay pending.
func (g *Gate) Check(ctx context.Context, m *Match) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.oracle.CanTransfer(ctx, m.MakerOrder.Compliance, m.Maker, m.Taker, m.ExecutionAmount)
	if err != nil {
		g.deny(m, "maker_transfer_check_error", err)
		return false
	}
	if !ok {
		g.deny(m, "maker_transfer_denied", nil)
		return false
	}

	ok, err = g.oracle.CanTransfer(ctx, m.TakerOrder.Compliance, m.Taker, m.Maker, m.CounterAmount())
	if err != nil {
		g.deny(m, "taker_transfer_check_error", err)
		return false
	}
	if !ok {
		g.deny(m, "taker_transfer_denied", nil)
		return false
	}

	ok, err = g.oracle.IsVerified(ctx, m.MakerOrder.IdentityRegistry, m.Maker)
	if err != nil || !ok {
		g.deny(m, "maker_not_verified", err)
		return false
	}
	ok, err = g.oracle.IsVerified(ctx, m.TakerOrder.IdentityRegistry, m.Taker)
	if err != nil || !ok {
		g.deny(m, "taker_not_verified", err)
		return false
	}

	return true
}

func (g *Gate) deny(m *Match, reason string, err error) {
	fields := []interface{}{
		"match_id", m.ID,
		"maker_order", m.MakerOrderID,
		"taker_order", m.TakerOrderID,
		"reason", reason,
	}
	if err != nil {
		fields = append(fields, "err", err)
	}
	g.log.Infow("compliance_denied", fields...)
}
