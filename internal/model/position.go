package model

import "math/big"

// Position is the (market, account) state held by the external ledger.
// Read-only from the gateway's perspective; mutation happens only through
// the forwarded supply/borrow calls.
type Position struct {
	SupplyShares *big.Int `json:"supply_shares"`
	BorrowShares *big.Int `json:"borrow_shares"`
	Collateral   *big.Int `json:"collateral"`
}

// MarketState mirrors the ledger's per-market accounting totals.
type MarketState struct {
	TotalSupplyAssets *big.Int `json:"total_supply_assets"`
	TotalSupplyShares *big.Int `json:"total_supply_shares"`
	TotalBorrowAssets *big.Int `json:"total_borrow_assets"`
	TotalBorrowShares *big.Int `json:"total_borrow_shares"`
	LastUpdate        uint64   `json:"last_update"`
	Fee               *big.Int `json:"fee"`
}
