package engine

import (
	"bytes"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order is a resting instruction to exchange AmountIn of TokenIn for
// TokenOut at limit Price, settled through a single AMM pool.
//
// Price is always quoted as token1-per-token0 of the pool's pair, where
// token0 is the lexicographically smaller token address (the AMM's own
// ordering). An order acquiring token0 (TokenOut < TokenIn) is the buy
// side; its mirror is the sell side.
type Order struct {
	ID               string
	Maker            common.Address
	TokenIn          common.Address
	TokenOut         common.Address
	AmountIn         *big.Int
	Price            decimal.Decimal
	Type             OrderType
	Expiry           time.Time
	Pool             common.Address
	IdentityRegistry common.Address
	Compliance       common.Address
	CreatedAt        time.Time
	Status           OrderStatus
	FilledAmount     *big.Int
}

// Validate enforces required fields at construction time, so the matcher
// never has to re-check shape per access.
func (o *Order) Validate() error {
	switch {
	case o.ID == "":
		return errors.New("order: missing id")
	case o.Maker == (common.Address{}):
		return errors.New("order: missing maker")
	case o.TokenIn == (common.Address{}) || o.TokenOut == (common.Address{}):
		return errors.New("order: missing token pair")
	case o.TokenIn == o.TokenOut:
		return errors.New("order: tokenIn equals tokenOut")
	case o.AmountIn == nil || o.AmountIn.Sign() <= 0:
		return errors.New("order: amountIn must be positive")
	case o.Price.Sign() <= 0:
		return errors.New("order: price must be positive")
	case o.Pool == (common.Address{}):
		return errors.New("order: missing pool")
	case o.FilledAmount != nil && o.FilledAmount.Cmp(o.AmountIn) > 0:
		return errors.New("order: filledAmount exceeds amountIn")
	}
	return nil
}

// IsBuy reports whether the order acquires the pair's token0 side.
func (o *Order) IsBuy() bool {
	return bytes.Compare(o.TokenOut.Bytes(), o.TokenIn.Bytes()) < 0
}

// Remaining is the unfilled portion of AmountIn.
func (o *Order) Remaining() *big.Int {
	if o.FilledAmount == nil {
		return new(big.Int).Set(o.AmountIn)
	}
	return new(big.Int).Sub(o.AmountIn, o.FilledAmount)
}

// Expired reports whether the order's expiry is at or before now. Expired
// orders are never matched, whatever their stored status says.
func (o *Order) Expired(now time.Time) bool {
	return !o.Expiry.After(now)
}

type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchExecuted MatchStatus = "executed"
	MatchFailed   MatchStatus = "failed"
)

// Match pairs one sell-side (maker) order with one buy-side (taker) order
// for a single cycle. Matches are never persisted: a failed match is not
// retried, the underlying orders simply become eligible again next cycle.
type Match struct {
	ID           string
	MakerOrderID string
	TakerOrderID string
	Maker        common.Address
	Taker        common.Address
	Pool         common.Address

	ExecutionAmount *big.Int
	ExecutionPrice  decimal.Decimal

	// Swap parameters, filled in by the settlement executor from live
	// pool state just before execution.
	ZeroForOne        bool
	SqrtPriceLimitX96 *big.Int

	Status        MatchStatus
	SettlementRef common.Hash
	FailureReason string

	// Order snapshots for compliance checks and reconciliation.
	MakerOrder *Order
	TakerOrder *Order
}

// CounterAmount is the taker-side amount implied by the execution price,
// used for the taker→maker leg of the compliance check.
func (m *Match) CounterAmount() *big.Int {
	return decimal.NewFromBigInt(m.ExecutionAmount, 0).Mul(m.ExecutionPrice).BigInt()
}

// PoolState is the settlement venue's current price state.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Token0       common.Address
	Token1       common.Address
}

// SwapParams carries one settlement swap request to the venue.
type SwapParams struct {
	Pool              common.Address
	Recipient         common.Address
	ZeroForOne        bool
	AmountIn          *big.Int
	SqrtPriceLimitX96 *big.Int
}

// StatusUpdate is a partial write against one order in the order store.
type StatusUpdate struct {
	Status        OrderStatus
	FilledAmount  *big.Int
	SettlementRef string
	FailureReason string
}
