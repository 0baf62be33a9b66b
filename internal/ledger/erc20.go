package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20Client implements Token against standard fungible token contracts,
// signing mutating calls with the gateway key.
type ERC20Client struct {
	abi abi.ABI
	tx  *Transactor
}

func NewERC20Client(tx *Transactor) (*ERC20Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	return &ERC20Client{abi: parsed, tx: tx}, nil
}

func (c *ERC20Client) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "balanceOf", account)
}

func (c *ERC20Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "allowance", owner, spender)
}

func (c *ERC20Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	return c.send(ctx, token, "approve", spender, amount)
}

func (c *ERC20Client) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	return c.send(ctx, token, "transfer", to, amount)
}

func (c *ERC20Client) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) (common.Hash, error) {
	return c.send(ctx, token, "transferFrom", from, to, amount)
}

func (c *ERC20Client) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	output, err := c.tx.Call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	values, err := c.abi.Unpack(method, output)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return values[0].(*big.Int), nil
}

func (c *ERC20Client) send(ctx context.Context, token common.Address, method string, args ...interface{}) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, token, data)
}
