package service

import (
	"fmt"
	"math/big"

	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
	"github.com/MorphGate/morphgate/internal/pkg/metrics"
)

// RiskEngine applies the per-tenant pre-flight limits before any ledger
// call is forwarded. A returned error must reject the operation.
type RiskEngine struct{}

func NewRiskEngine() *RiskEngine {
	return &RiskEngine{}
}

// CheckSupply validates a supply or collateral amount against the
// tenant's limits.
func (e *RiskEngine) CheckSupply(tenant *model.Tenant, marketID model.MarketID, amount *big.Int) error {
	if err := e.checkRestricted(tenant, marketID); err != nil {
		return err
	}
	return e.checkLimit(tenant.Risk.MaxSupplyAssets, amount, "supply")
}

// CheckBorrow validates a borrow amount against the tenant's limits.
func (e *RiskEngine) CheckBorrow(tenant *model.Tenant, marketID model.MarketID, amount *big.Int) error {
	if err := e.checkRestricted(tenant, marketID); err != nil {
		return err
	}
	return e.checkLimit(tenant.Risk.MaxBorrowAssets, amount, "borrow")
}

func (e *RiskEngine) checkRestricted(tenant *model.Tenant, marketID model.MarketID) error {
	hex := marketID.Hex()
	for _, restricted := range tenant.Risk.RestrictedMarkets {
		if restricted == hex {
			metrics.Rejects.WithLabelValues("restricted_market").Inc()
			return apperrors.Newf(apperrors.ErrRiskReject, "risk reject: market %s is restricted", hex)
		}
	}
	return nil
}

func (e *RiskEngine) checkLimit(limit string, amount *big.Int, op string) error {
	if limit == "" {
		return nil
	}
	max, err := model.ParseBig(limit)
	if err != nil {
		return fmt.Errorf("invalid risk limit %q: %w", limit, err)
	}
	if max.Sign() > 0 && amount.Cmp(max) > 0 {
		metrics.Rejects.WithLabelValues("max_" + op).Inc()
		return apperrors.Newf(apperrors.ErrRiskReject, "risk reject: %s amount %s exceeds limit %s", op, amount, max)
	}
	return nil
}
