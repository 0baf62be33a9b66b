package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/MorphGate/morphgate/internal/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal slices of the Morpho Blue and IRM ABIs: only what the gateway
// forwards or reads.
const morphoABIJSON = `[
  {"type":"function","name":"supply","stateMutability":"nonpayable","inputs":[` + marketParamsJSON + `,{"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"assetsSupplied","type":"uint256"},{"name":"sharesSupplied","type":"uint256"}]},
  {"type":"function","name":"supplyCollateral","stateMutability":"nonpayable","inputs":[` + marketParamsJSON + `,{"name":"assets","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"borrow","stateMutability":"nonpayable","inputs":[` + marketParamsJSON + `,{"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"receiver","type":"address"}],"outputs":[{"name":"assetsBorrowed","type":"uint256"},{"name":"sharesBorrowed","type":"uint256"}]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[` + marketParamsJSON + `,{"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"receiver","type":"address"}],"outputs":[{"name":"assetsWithdrawn","type":"uint256"},{"name":"sharesWithdrawn","type":"uint256"}]},
  {"type":"function","name":"withdrawCollateral","stateMutability":"nonpayable","inputs":[` + marketParamsJSON + `,{"name":"assets","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"receiver","type":"address"}],"outputs":[]},
  {"type":"function","name":"repay","stateMutability":"nonpayable","inputs":[` + marketParamsJSON + `,{"name":"assets","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"onBehalf","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"assetsRepaid","type":"uint256"},{"name":"sharesRepaid","type":"uint256"}]},
  {"type":"function","name":"position","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"},{"name":"user","type":"address"}],"outputs":[{"name":"supplyShares","type":"uint256"},{"name":"borrowShares","type":"uint128"},{"name":"collateral","type":"uint128"}]},
  {"type":"function","name":"market","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"totalSupplyAssets","type":"uint128"},{"name":"totalSupplyShares","type":"uint128"},{"name":"totalBorrowAssets","type":"uint128"},{"name":"totalBorrowShares","type":"uint128"},{"name":"lastUpdate","type":"uint128"},{"name":"fee","type":"uint128"}]}
]`

const marketParamsJSON = `{"name":"marketParams","type":"tuple","components":[{"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},{"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]}`

const irmABIJSON = `[
  {"type":"function","name":"borrowRateView","stateMutability":"view","inputs":[` + marketParamsJSON + `,{"name":"market","type":"tuple","components":[{"name":"totalSupplyAssets","type":"uint128"},{"name":"totalSupplyShares","type":"uint128"},{"name":"totalBorrowAssets","type":"uint128"},{"name":"totalBorrowShares","type":"uint128"},{"name":"lastUpdate","type":"uint128"},{"name":"fee","type":"uint128"}]}],"outputs":[{"name":"","type":"uint256"}]}
]`

// marketParamsTuple is the ABI packing form of model.MarketConfig; field
// names follow the tuple components.
type marketParamsTuple struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

type marketStateTuple struct {
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	LastUpdate        *big.Int
	Fee               *big.Int
}

func toParamsTuple(cfg model.MarketConfig) marketParamsTuple {
	lltv := cfg.LLTV
	if lltv == nil {
		lltv = new(big.Int)
	}
	return marketParamsTuple{
		LoanToken:       cfg.LoanToken,
		CollateralToken: cfg.CollateralToken,
		Oracle:          cfg.Oracle,
		Irm:             cfg.RateModel,
		Lltv:            lltv,
	}
}

func toStateTuple(state *model.MarketState) marketStateTuple {
	return marketStateTuple{
		TotalSupplyAssets: state.TotalSupplyAssets,
		TotalSupplyShares: state.TotalSupplyShares,
		TotalBorrowAssets: state.TotalBorrowAssets,
		TotalBorrowShares: state.TotalBorrowShares,
		LastUpdate:        new(big.Int).SetUint64(state.LastUpdate),
		Fee:               state.Fee,
	}
}

// Client is the on-chain Ledger implementation. Mutating calls are
// simulated first through eth_call (for the pre-flight bound checks) and
// submitted as signed transactions.
type Client struct {
	address common.Address
	abi     abi.ABI
	irmABI  abi.ABI
	tx      *Transactor
}

func NewClient(contract common.Address, tx *Transactor) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(morphoABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger abi: %w", err)
	}
	irm, err := abi.JSON(strings.NewReader(irmABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse irm abi: %w", err)
	}
	return &Client{
		address: contract,
		abi:     parsed,
		irmABI:  irm,
		tx:      tx,
	}, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

func (c *Client) supplyCalldata(cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) ([]byte, error) {
	return c.abi.Pack("supply", toParamsTuple(cfg), assets, new(big.Int), onBehalf, []byte{})
}

func (c *Client) SimulateSupply(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (*big.Int, *big.Int, error) {
	data, err := c.supplyCalldata(cfg, assets, onBehalf)
	if err != nil {
		return nil, nil, err
	}
	return c.simulatePair(ctx, "supply", data)
}

func (c *Client) Supply(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (common.Hash, error) {
	data, err := c.supplyCalldata(cfg, assets, onBehalf)
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, c.address, data)
}

func (c *Client) SupplyCollateral(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (common.Hash, error) {
	data, err := c.abi.Pack("supplyCollateral", toParamsTuple(cfg), assets, onBehalf, []byte{})
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, c.address, data)
}

func (c *Client) borrowCalldata(cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) ([]byte, error) {
	return c.abi.Pack("borrow", toParamsTuple(cfg), assets, new(big.Int), onBehalf, receiver)
}

func (c *Client) SimulateBorrow(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (*big.Int, *big.Int, error) {
	data, err := c.borrowCalldata(cfg, assets, onBehalf, receiver)
	if err != nil {
		return nil, nil, err
	}
	return c.simulatePair(ctx, "borrow", data)
}

func (c *Client) Borrow(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error) {
	data, err := c.borrowCalldata(cfg, assets, onBehalf, receiver)
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, c.address, data)
}

func (c *Client) Withdraw(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error) {
	data, err := c.abi.Pack("withdraw", toParamsTuple(cfg), assets, new(big.Int), onBehalf, receiver)
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, c.address, data)
}

func (c *Client) WithdrawCollateral(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error) {
	data, err := c.abi.Pack("withdrawCollateral", toParamsTuple(cfg), assets, onBehalf, receiver)
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, c.address, data)
}

func (c *Client) Repay(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (common.Hash, error) {
	data, err := c.abi.Pack("repay", toParamsTuple(cfg), assets, new(big.Int), onBehalf, []byte{})
	if err != nil {
		return common.Hash{}, err
	}
	return c.tx.Send(ctx, c.address, data)
}

func (c *Client) Position(ctx context.Context, id model.MarketID, account common.Address) (*model.Position, error) {
	data, err := c.abi.Pack("position", [32]byte(id), account)
	if err != nil {
		return nil, err
	}
	output, err := c.tx.Call(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("position call failed: %w", err)
	}
	values, err := c.abi.Unpack("position", output)
	if err != nil || len(values) != 3 {
		return nil, fmt.Errorf("failed to decode position: %w", err)
	}
	return &model.Position{
		SupplyShares: values[0].(*big.Int),
		BorrowShares: values[1].(*big.Int),
		Collateral:   values[2].(*big.Int),
	}, nil
}

func (c *Client) Market(ctx context.Context, id model.MarketID) (*model.MarketState, error) {
	data, err := c.abi.Pack("market", [32]byte(id))
	if err != nil {
		return nil, err
	}
	output, err := c.tx.Call(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("market call failed: %w", err)
	}
	values, err := c.abi.Unpack("market", output)
	if err != nil || len(values) != 6 {
		return nil, fmt.Errorf("failed to decode market: %w", err)
	}
	return &model.MarketState{
		TotalSupplyAssets: values[0].(*big.Int),
		TotalSupplyShares: values[1].(*big.Int),
		TotalBorrowAssets: values[2].(*big.Int),
		TotalBorrowShares: values[3].(*big.Int),
		LastUpdate:        values[4].(*big.Int).Uint64(),
		Fee:               values[5].(*big.Int),
	}, nil
}

// BorrowRate queries the market's rate model contract. View-only.
func (c *Client) BorrowRate(ctx context.Context, cfg model.MarketConfig, state *model.MarketState) (*big.Int, error) {
	data, err := c.irmABI.Pack("borrowRateView", toParamsTuple(cfg), toStateTuple(state))
	if err != nil {
		return nil, err
	}
	output, err := c.tx.Call(ctx, cfg.RateModel, data)
	if err != nil {
		return nil, fmt.Errorf("borrowRateView call failed: %w", err)
	}
	values, err := c.irmABI.Unpack("borrowRateView", output)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("failed to decode borrow rate: %w", err)
	}
	return values[0].(*big.Int), nil
}

// HasCode reports whether addr carries deployed bytecode.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.tx.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("code lookup failed: %w", err)
	}
	return len(code) > 0, nil
}

func (c *Client) simulatePair(ctx context.Context, method string, data []byte) (*big.Int, *big.Int, error) {
	output, err := c.tx.Call(ctx, c.address, data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s simulation failed: %w", method, err)
	}
	values, err := c.abi.Unpack(method, output)
	if err != nil || len(values) != 2 {
		return nil, nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return values[0].(*big.Int), values[1].(*big.Int), nil
}
