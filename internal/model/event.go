package model

import "time"

// ExecutionKind labels the gateway operation an event was emitted by.
type ExecutionKind string

const (
	ExecSupply             ExecutionKind = "supply"
	ExecSupplyCollateral   ExecutionKind = "supply_collateral"
	ExecBorrow             ExecutionKind = "borrow"
	ExecWithdraw           ExecutionKind = "withdraw"
	ExecWithdrawCollateral ExecutionKind = "withdraw_collateral"
	ExecRepay              ExecutionKind = "repay"
	ExecRecover            ExecutionKind = "recover"
)

// ExecutionEvent is the notification emitted after every successful
// mutating operation. Amounts are decimal strings in base units.
type ExecutionEvent struct {
	ID       string        `json:"id"`
	Kind     ExecutionKind `json:"kind"`
	MarketID string        `json:"market_id,omitempty"`
	TenantID string        `json:"tenant_id"`
	Caller   string        `json:"caller"`
	Assets   string        `json:"assets"`
	Shares   string        `json:"shares,omitempty"`
	TxHash   string        `json:"tx_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
