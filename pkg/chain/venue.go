package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arbelos/dexkeeper/pkg/engine"
)

// Concentrated-liquidity pool surface the keeper needs: current price
// state, token ordering, and the swap call.
const poolABIJSON = `[
	{"name":"slot0","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}]},
	{"name":"token0","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"name":"token1","type":"function","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"name":"swap","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"recipient","type":"address"},
		{"name":"zeroForOne","type":"bool"},
		{"name":"amountSpecified","type":"int256"},
		{"name":"sqrtPriceLimitX96","type":"uint160"},
		{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"amount0","type":"int256"},{"name":"amount1","type":"int256"}]}
]`

var poolABI = mustABI(poolABIJSON)

// Venue implements engine.SettlementVenue against AMM pools addressed per
// order. The chain is the source of truth once a swap succeeds.
type Venue struct {
	client *Client
}

func NewVenue(client *Client) *Venue {
	return &Venue{client: client}
}

func (v *Venue) PriceState(ctx context.Context, pool common.Address) (engine.PoolState, error) {
	var state engine.PoolState

	data, err := poolABI.Pack("slot0")
	if err != nil {
		return state, fmt.Errorf("pack slot0: %w", err)
	}
	out, err := v.client.call(ctx, pool, data)
	if err != nil {
		return state, fmt.Errorf("slot0 %s: %w", pool.Hex(), err)
	}
	res, err := poolABI.Unpack("slot0", out)
	if err != nil {
		return state, fmt.Errorf("unpack slot0: %w", err)
	}
	sqrtPrice, ok := res[0].(*big.Int)
	if !ok || sqrtPrice.Sign() <= 0 {
		return state, fmt.Errorf("pool %s has no price", pool.Hex())
	}
	state.SqrtPriceX96 = sqrtPrice

	if state.Token0, err = v.tokenAt(ctx, pool, "token0"); err != nil {
		return state, err
	}
	if state.Token1, err = v.tokenAt(ctx, pool, "token1"); err != nil {
		return state, err
	}
	return state, nil
}

func (v *Venue) tokenAt(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := v.client.call(ctx, pool, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s %s: %w", method, pool.Hex(), err)
	}
	res, err := poolABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	addr, _ := res[0].(common.Address)
	return addr, nil
}

// Swap executes one settlement swap. Errors come back as typed
// *engine.SettlementError from the transaction path.
func (v *Venue) Swap(ctx context.Context, p engine.SwapParams) (common.Hash, error) {
	data, err := poolABI.Pack("swap",
		p.Recipient,
		p.ZeroForOne,
		new(big.Int).Set(p.AmountIn), // exact input: positive amountSpecified
		p.SqrtPriceLimitX96,
		[]byte{},
	)
	if err != nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementNetwork,
			fmt.Errorf("pack swap: %w", err))
	}
	return v.client.transact(ctx, p.Pool, data)
}

// SwapOutcome resolves the receipt of an earlier swap whose fate was
// unknown when it was sent.
func (v *Venue) SwapOutcome(ctx context.Context, tx common.Hash) (engine.TxOutcome, error) {
	return v.client.txOutcome(ctx, tx)
}
