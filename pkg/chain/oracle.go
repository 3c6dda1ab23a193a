package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI surface of the token compliance module and identity
// registry (ERC-3643 style).
const (
	complianceABIJSON = `[
		{"name":"canTransfer","type":"function","stateMutability":"view",
		 "inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]},
		{"name":"transferred","type":"function","stateMutability":"nonpayable",
		 "inputs":[{"name":"_from","type":"address"},{"name":"_to","type":"address"},{"name":"_amount","type":"uint256"}],
		 "outputs":[]}
	]`
	identityRegistryABIJSON = `[
		{"name":"isVerified","type":"function","stateMutability":"view",
		 "inputs":[{"name":"_userAddress","type":"address"}],
		 "outputs":[{"name":"","type":"bool"}]}
	]`
)

var (
	complianceABI       = mustABI(complianceABIJSON)
	identityRegistryABI = mustABI(identityRegistryABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Oracle implements engine.ComplianceOracle against on-chain compliance
// modules and identity registries, addressed per order.
type Oracle struct {
	client *Client
}

func NewOracle(client *Client) *Oracle {
	return &Oracle{client: client}
}

func (o *Oracle) CanTransfer(ctx context.Context, module, from, to common.Address, amount *big.Int) (bool, error) {
	data, err := complianceABI.Pack("canTransfer", from, to, amount)
	if err != nil {
		return false, fmt.Errorf("pack canTransfer: %w", err)
	}
	out, err := o.client.call(ctx, module, data)
	if err != nil {
		return false, fmt.Errorf("canTransfer %s: %w", module.Hex(), err)
	}
	res, err := complianceABI.Unpack("canTransfer", out)
	if err != nil {
		return false, fmt.Errorf("unpack canTransfer: %w", err)
	}
	ok, _ := res[0].(bool)
	return ok, nil
}

func (o *Oracle) IsVerified(ctx context.Context, registry, party common.Address) (bool, error) {
	data, err := identityRegistryABI.Pack("isVerified", party)
	if err != nil {
		return false, fmt.Errorf("pack isVerified: %w", err)
	}
	out, err := o.client.call(ctx, registry, data)
	if err != nil {
		return false, fmt.Errorf("isVerified %s: %w", registry.Hex(), err)
	}
	res, err := identityRegistryABI.Unpack("isVerified", out)
	if err != nil {
		return false, fmt.Errorf("unpack isVerified: %w", err)
	}
	ok, _ := res[0].(bool)
	return ok, nil
}

// NotifyTransfer reports a realized transfer to the compliance module.
// Callers treat this as best-effort; settlement does not depend on it.
func (o *Oracle) NotifyTransfer(ctx context.Context, module, from, to common.Address, amount *big.Int) error {
	data, err := complianceABI.Pack("transferred", from, to, amount)
	if err != nil {
		return fmt.Errorf("pack transferred: %w", err)
	}
	if _, err := o.client.transact(ctx, module, data); err != nil {
		return fmt.Errorf("transferred %s: %w", module.Hex(), err)
	}
	return nil
}
