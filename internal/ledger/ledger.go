// Package ledger talks to the external lending protocol. The gateway never
// holds market accounting itself; every supply, borrow and position read is
// forwarded to the on-chain ledger through the interfaces below.
package ledger

import (
	"context"
	"math/big"

	"github.com/MorphGate/morphgate/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the external protocol surface the gateway forwards to.
// Simulate* are view calls used for pre-flight checks: they return the
// assets/shares the matching mutating call would produce, without state
// change, so slippage failures abort before anything is submitted.
type Ledger interface {
	SimulateSupply(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (*big.Int, *big.Int, error)
	Supply(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (common.Hash, error)

	SupplyCollateral(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (common.Hash, error)

	SimulateBorrow(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (*big.Int, *big.Int, error)
	Borrow(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error)

	Withdraw(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error)
	WithdrawCollateral(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error)
	Repay(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf common.Address) (common.Hash, error)

	Position(ctx context.Context, id model.MarketID, account common.Address) (*model.Position, error)
	Market(ctx context.Context, id model.MarketID) (*model.MarketState, error)
}

// RateModel exposes the interest rate model's view-only borrow rate.
type RateModel interface {
	// BorrowRate returns the per-second borrow rate in WAD scale for the
	// given market state.
	BorrowRate(ctx context.Context, cfg model.MarketConfig, state *model.MarketState) (*big.Int, error)
}

// Token is the fungible asset surface the gateway custody flows use.
// Mutating calls are signed with the gateway key and return the tx hash.
type Token interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error)
	TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) (common.Hash, error)
}

// CodeResolver answers whether an address carries deployed bytecode. Used
// by market validation to reject rate model addresses that are not
// contracts at all; it is an existence check, not a behavioral one.
type CodeResolver interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}
