package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MarketParams is the wire form of a market configuration. Addresses are
// 0x-hex strings and LLTV is a decimal string in WAD scale.
type MarketParams struct {
	LoanToken       string `json:"loan_token" binding:"required"`
	CollateralToken string `json:"collateral_token" binding:"required"`
	Oracle          string `json:"oracle" binding:"required"`
	RateModel       string `json:"rate_model" binding:"required"`
	LLTV            string `json:"lltv" binding:"required"`
}

// ToConfig parses the wire form. Malformed fields are request errors;
// semantic checks (zero addresses, LLTV bounds) stay in MarketConfig.Validate.
func (p MarketParams) ToConfig() (MarketConfig, error) {
	var cfg MarketConfig
	for _, f := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"loan_token", p.LoanToken, &cfg.LoanToken},
		{"collateral_token", p.CollateralToken, &cfg.CollateralToken},
		{"oracle", p.Oracle, &cfg.Oracle},
		{"rate_model", p.RateModel, &cfg.RateModel},
	} {
		addr := strings.TrimSpace(f.value)
		if addr != "" && !common.IsHexAddress(addr) {
			return cfg, fmt.Errorf("invalid %s address", f.name)
		}
		*f.dst = common.HexToAddress(addr)
	}
	lltv, err := ParseBig(p.LLTV)
	if err != nil {
		return cfg, fmt.Errorf("invalid lltv: %w", err)
	}
	cfg.LLTV = lltv
	return cfg, nil
}

// ParseBig parses a non-negative decimal string into a big.Int.
func ParseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative value: %q", s)
	}
	return v, nil
}

// SupplyRequest is the body of POST /v1/supply.
type SupplyRequest struct {
	Market    MarketParams `json:"market" binding:"required"`
	Amount    string       `json:"amount" binding:"required"`
	MinShares string       `json:"min_shares,omitempty"`
}

// CollateralRequest is the body of POST /v1/collateral and
// POST /v1/withdraw-collateral.
type CollateralRequest struct {
	Market MarketParams `json:"market" binding:"required"`
	Amount string       `json:"amount" binding:"required"`
}

// BorrowRequest is the body of POST /v1/borrow.
// MaxHealthFactor is accepted for forward compatibility but not yet used
// by the collateral bound check.
type BorrowRequest struct {
	Market          MarketParams `json:"market" binding:"required"`
	Amount          string       `json:"amount" binding:"required"`
	MaxHealthFactor string       `json:"max_health_factor,omitempty"`
}

// WithdrawRequest is the body of POST /v1/withdraw and POST /v1/repay.
type WithdrawRequest struct {
	Market MarketParams `json:"market" binding:"required"`
	Amount string       `json:"amount" binding:"required"`
}

// RecoverRequest is the body of the owner-only POST /v1/admin/recover.
type RecoverRequest struct {
	Token  string `json:"token" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// OwnershipRequest is the body of POST /v1/admin/ownership.
type OwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

// ExecutionResponse reports the outcome of a forwarded mutating call.
// Assets and Shares come from the pre-flight simulation, not the mined
// receipt; market state can move between the eth_call and inclusion, so
// the mined amounts may differ slightly. TxHash is the submitted
// transaction for callers that need the exact settled figures.
type ExecutionResponse struct {
	MarketID string `json:"market_id"`
	Assets   string `json:"assets"`
	Shares   string `json:"shares,omitempty"`
	TxHash   string `json:"tx_hash,omitempty"`
}

// MarketInfoResponse is the read-only market view.
type MarketInfoResponse struct {
	MarketID    string       `json:"market_id"`
	State       *MarketState `json:"state"`
	Efficiency  int          `json:"efficiency"`
	BorrowRate  string       `json:"borrow_rate"`  // per-second rate, WAD scale
	BorrowAPR   string       `json:"borrow_apr"`   // derived, human readable
	Utilization string       `json:"utilization"`  // totalBorrow/totalSupply
}
