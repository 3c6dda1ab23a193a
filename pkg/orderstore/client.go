// Package orderstore implements the engine's OrderStore boundary over the
// order service's REST API.
package orderstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arbelos/dexkeeper/pkg/engine"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type orderDTO struct {
	ID               string          `json:"id"`
	Maker            string          `json:"maker"`
	TokenIn          string          `json:"tokenIn"`
	TokenOut         string          `json:"tokenOut"`
	AmountIn         string          `json:"amountIn"`
	Price            decimal.Decimal `json:"price"`
	OrderType        string          `json:"orderType"`
	Expiry           time.Time       `json:"expiry"`
	Pool             string          `json:"poolAddress"`
	IdentityRegistry string          `json:"identityRegistry"`
	Compliance       string          `json:"compliance"`
	CreatedAt        time.Time       `json:"createdAt"`
	Status           string          `json:"status"`
	FilledAmount     string          `json:"filledAmount"`
}

type patchDTO struct {
	Status        string `json:"status"`
	FilledAmount  string `json:"filledAmount,omitempty"`
	SettlementRef string `json:"settlementRef,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// ListPendingOrders fetches the current open-order snapshot. Rows that
// fail validation are skipped with a warning rather than failing the
// whole fetch; one malformed order must not stall the keeper.
func (c *Client) ListPendingOrders(ctx context.Context) ([]*engine.Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders?status=pending", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list pending orders: status %d: %s", resp.StatusCode, body)
	}

	var dtos []orderDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]*engine.Order, 0, len(dtos))
	for _, d := range dtos {
		o, err := d.toOrder()
		if err != nil {
			c.log.Warnw("order_skipped_invalid", "order_id", d.ID, "err", err)
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// PatchOrderStatus writes a partial status update for one order.
func (c *Client) PatchOrderStatus(ctx context.Context, id string, upd engine.StatusUpdate) error {
	body := patchDTO{
		Status:        string(upd.Status),
		SettlementRef: upd.SettlementRef,
		FailureReason: upd.FailureReason,
	}
	if upd.FilledAmount != nil {
		body.FilledAmount = upd.FilledAmount.String()
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/orders/"+id, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("patch order %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("patch order %s: status %d: %s", id, resp.StatusCode, msg)
	}
	return nil
}

func (d orderDTO) toOrder() (*engine.Order, error) {
	for name, addr := range map[string]string{
		"maker": d.Maker, "tokenIn": d.TokenIn, "tokenOut": d.TokenOut, "poolAddress": d.Pool,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid %s address %q", name, addr)
		}
	}

	amountIn, ok := new(big.Int).SetString(d.AmountIn, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amountIn %q", d.AmountIn)
	}
	filled := new(big.Int)
	if d.FilledAmount != "" {
		if filled, ok = new(big.Int).SetString(d.FilledAmount, 10); !ok {
			return nil, fmt.Errorf("invalid filledAmount %q", d.FilledAmount)
		}
	}

	o := &engine.Order{
		ID:               d.ID,
		Maker:            common.HexToAddress(d.Maker),
		TokenIn:          common.HexToAddress(d.TokenIn),
		TokenOut:         common.HexToAddress(d.TokenOut),
		AmountIn:         amountIn,
		Price:            d.Price,
		Type:             engine.OrderType(d.OrderType),
		Expiry:           d.Expiry,
		Pool:             common.HexToAddress(d.Pool),
		IdentityRegistry: common.HexToAddress(d.IdentityRegistry),
		Compliance:       common.HexToAddress(d.Compliance),
		CreatedAt:        d.CreatedAt,
		Status:           engine.OrderStatus(d.Status),
		FilledAmount:     filled,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}
