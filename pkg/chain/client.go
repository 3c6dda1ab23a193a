// Package chain implements the engine's on-chain boundaries, the compliance
// oracle and the settlement venue, over an Ethereum JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/arbelos/dexkeeper/pkg/engine"
)

const receiptPollInterval = 500 * time.Millisecond

// Client wraps an ethclient with the keeper's signer. A nil signer is
// valid and makes every state-changing call fail with a signer error;
// view calls still work (read-only mode).
type Client struct {
	eth     *ethclient.Client
	signer  *Signer
	chainID *big.Int
	log     *zap.SugaredLogger
}

func Dial(ctx context.Context, rpcURL string, signer *Signer, log *zap.SugaredLogger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &Client{eth: eth, signer: signer, chainID: chainID, log: log}, nil
}

func (c *Client) Close() { c.eth.Close() }

// call performs a read-only contract call.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// transact signs and sends a contract call, then waits for its receipt so
// an on-chain revert surfaces as an error to the caller.
func (c *Client) transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementSigner,
			fmt.Errorf("no signer key configured"))
	}

	from := c.signer.Address()
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementNetwork, fmt.Errorf("nonce: %w", err))
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementNetwork, fmt.Errorf("gas price: %w", err))
	}

	// A failing estimate is the node simulating the call and seeing it
	// revert, so it is classified as a revert, not a transport problem.
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementReverted, fmt.Errorf("estimate gas: %w", err))
	}

	tx := types.NewTransaction(nonce, to, common.Big0, gasLimit, gasPrice, data)
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementSigner, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, engine.NewSettlementError(engine.SettlementNetwork, fmt.Errorf("send tx: %w", err))
	}

	hash := signed.Hash()
	c.log.Debugw("tx_sent", "to", to.Hex(), "nonce", nonce, "tx", hash.Hex())
	if err := c.waitMined(ctx, hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// waitMined polls for the receipt until ctx expires.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return engine.NewSettlementError(engine.SettlementReverted,
					fmt.Errorf("tx %s reverted", hash.Hex()))
			}
			return nil
		}

		select {
		case <-ctx.Done():
			// The transaction was sent and may still land. Carry its hash
			// so the caller can journal the in-flight send and resolve it
			// on the next attempt instead of sending again.
			return &engine.SettlementError{
				Kind:  engine.SettlementNetwork,
				Tx:    hash,
				Cause: fmt.Errorf("awaiting receipt for %s: %w", hash.Hex(), ctx.Err()),
			}
		case <-ticker.C:
		}
	}
}

// txOutcome reports the current fate of a sent transaction.
func (c *Client) txOutcome(ctx context.Context, hash common.Hash) (engine.TxOutcome, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return engine.TxPending, nil
		}
		return engine.TxPending, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return engine.TxReverted, nil
	}
	return engine.TxConfirmed, nil
}
