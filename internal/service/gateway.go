package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/MorphGate/morphgate/internal/ledger"
	"github.com/MorphGate/morphgate/internal/manager"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
	"github.com/MorphGate/morphgate/internal/pkg/logger"
	"github.com/MorphGate/morphgate/internal/pkg/metrics"
)

const secondsPerYear = 31536000

// stateMaxAge bounds how old a cached market state may be before
// MarketInfo falls back to a live chain read.
const stateMaxAge = time.Minute

// StateCache serves recently fetched state for tracked markets.
// Implemented by market.Cache.
type StateCache interface {
	Get(id model.MarketID) (*model.MarketState, time.Time, bool)
}

// GatewayService forwards integration operations to the external ledger.
// It validates parameters, enforces slippage and collateral pre-flight
// checks, moves tokens through the gateway custody account, and feeds
// the efficiency accumulator. All ledger accounting stays on-chain.
type GatewayService struct {
	ledger     ledger.Ledger
	rates      ledger.RateModel
	tokens     ledger.Token
	codes      ledger.CodeResolver
	allowances *manager.AllowanceManager
	efficiency *EfficiencyEngine
	events     *EventService
	risk       *RiskEngine
	guard      *entryGuard
	states     StateCache

	custody    common.Address // gateway signer, holds tokens in flight
	ledgerAddr common.Address // ledger contract, spender of custody funds

	ownerMu sync.RWMutex
	owner   common.Address
}

type GatewayDeps struct {
	Ledger     ledger.Ledger
	Rates      ledger.RateModel
	Tokens     ledger.Token
	Codes      ledger.CodeResolver
	Allowances *manager.AllowanceManager
	Efficiency *EfficiencyEngine
	Events     *EventService
	Risk       *RiskEngine
	States     StateCache
	Custody    common.Address
	LedgerAddr common.Address
	Owner      common.Address
}

func NewGatewayService(deps GatewayDeps) *GatewayService {
	risk := deps.Risk
	if risk == nil {
		risk = NewRiskEngine()
	}
	return &GatewayService{
		ledger:     deps.Ledger,
		rates:      deps.Rates,
		tokens:     deps.Tokens,
		codes:      deps.Codes,
		allowances: deps.Allowances,
		efficiency: deps.Efficiency,
		events:     deps.Events,
		risk:       risk,
		guard:      newEntryGuard(),
		states:     deps.States,
		custody:    deps.Custody,
		ledgerAddr: deps.LedgerAddr,
		owner:      deps.Owner,
	}
}

// SupplyWithProtection supplies loan assets with a minimum-shares floor.
// The supply is simulated first; if the simulated shares fall short of
// min_shares the operation aborts before any token moves.
func (g *GatewayService) SupplyWithProtection(ctx context.Context, tenant *model.Tenant, req model.SupplyRequest) (*model.ExecutionResponse, error) {
	cfg, amount, err := g.validateOp(ctx, req.Market, req.Amount, "supply")
	if err != nil {
		return nil, g.reject(model.ExecSupply, err)
	}
	minShares := big.NewInt(0)
	if req.MinShares != "" {
		if minShares, err = model.ParseBig(req.MinShares); err != nil {
			return nil, g.reject(model.ExecSupply, apperrors.NewInvalidRequest("min_shares: "+err.Error()))
		}
	}
	if tenant != nil {
		if err := g.risk.CheckSupply(tenant, cfg.ID(), amount); err != nil {
			return nil, g.reject(model.ExecSupply, err)
		}
	}

	caller := g.callerFor(tenant)
	if err := g.guard.enter(caller); err != nil {
		return nil, g.reject(model.ExecSupply, err)
	}
	defer g.guard.exit(caller)

	simAssets, simShares, err := g.ledger.SimulateSupply(ctx, cfg, amount, g.custody)
	if err != nil {
		return nil, g.reject(model.ExecSupply, apperrors.NewUpstream("supply simulation failed", err))
	}
	if simShares.Cmp(minShares) < 0 {
		return nil, g.reject(model.ExecSupply, apperrors.Newf(apperrors.ErrSlippageExceeded,
			"supply would mint %s shares, below min_shares %s", simShares, minShares))
	}

	if err := g.collect(ctx, cfg.LoanToken, caller, amount); err != nil {
		return nil, g.reject(model.ExecSupply, err)
	}
	txHash, err := g.ledger.Supply(ctx, cfg, amount, g.custody)
	if err != nil {
		return nil, g.reject(model.ExecSupply, apperrors.NewUpstream("supply failed", err))
	}

	if err := g.efficiency.Record(ctx, cfg.ID(), simShares); err != nil {
		logger.LogError(ctx, err, "efficiency record failed", "market", cfg.ID().Hex())
	}
	g.finish(model.ExecSupply, tenant, caller, cfg.ID(), simAssets, simShares, txHash)
	return &model.ExecutionResponse{
		MarketID: cfg.ID().Hex(),
		Assets:   simAssets.String(),
		Shares:   simShares.String(),
		TxHash:   txHash.Hex(),
	}, nil
}

// SupplyCollateral deposits collateral for the custody position.
// Collateral mints no shares, so there is nothing to protect against.
func (g *GatewayService) SupplyCollateral(ctx context.Context, tenant *model.Tenant, req model.CollateralRequest) (*model.ExecutionResponse, error) {
	cfg, amount, err := g.validateOp(ctx, req.Market, req.Amount, "supply collateral")
	if err != nil {
		return nil, g.reject(model.ExecSupplyCollateral, err)
	}
	if tenant != nil {
		if err := g.risk.CheckSupply(tenant, cfg.ID(), amount); err != nil {
			return nil, g.reject(model.ExecSupplyCollateral, err)
		}
	}

	caller := g.callerFor(tenant)
	if err := g.guard.enter(caller); err != nil {
		return nil, g.reject(model.ExecSupplyCollateral, err)
	}
	defer g.guard.exit(caller)

	if err := g.collect(ctx, cfg.CollateralToken, caller, amount); err != nil {
		return nil, g.reject(model.ExecSupplyCollateral, err)
	}
	txHash, err := g.ledger.SupplyCollateral(ctx, cfg, amount, g.custody)
	if err != nil {
		return nil, g.reject(model.ExecSupplyCollateral, apperrors.NewUpstream("supply collateral failed", err))
	}

	g.finish(model.ExecSupplyCollateral, tenant, caller, cfg.ID(), amount, nil, txHash)
	return &model.ExecutionResponse{
		MarketID: cfg.ID().Hex(),
		Assets:   amount.String(),
		TxHash:   txHash.Hex(),
	}, nil
}

// BorrowWithHealthCheck borrows loan assets after checking that posted
// collateral covers the requested amount at the market LLTV. The bound
// is collateral*lltv/WAD against the raw requested amount; borrowing
// exactly up to the bound is allowed. max_health_factor is accepted and
// recorded but does not tighten the bound yet.
func (g *GatewayService) BorrowWithHealthCheck(ctx context.Context, tenant *model.Tenant, req model.BorrowRequest) (*model.ExecutionResponse, error) {
	cfg, amount, err := g.validateOp(ctx, req.Market, req.Amount, "borrow")
	if err != nil {
		return nil, g.reject(model.ExecBorrow, err)
	}
	if tenant != nil {
		if err := g.risk.CheckBorrow(tenant, cfg.ID(), amount); err != nil {
			return nil, g.reject(model.ExecBorrow, err)
		}
	}

	caller := g.callerFor(tenant)
	if err := g.guard.enter(caller); err != nil {
		return nil, g.reject(model.ExecBorrow, err)
	}
	defer g.guard.exit(caller)

	pos, err := g.ledger.Position(ctx, cfg.ID(), g.custody)
	if err != nil {
		return nil, g.reject(model.ExecBorrow, apperrors.NewUpstream("position read failed", err))
	}
	maxBorrowable := new(big.Int).Mul(pos.Collateral, cfg.LLTV)
	maxBorrowable.Div(maxBorrowable, model.WAD)
	if amount.Cmp(maxBorrowable) > 0 {
		return nil, g.reject(model.ExecBorrow, apperrors.Newf(apperrors.ErrInsufficientCollateral,
			"borrow %s exceeds collateral capacity %s", amount, maxBorrowable))
	}

	simAssets, simShares, err := g.ledger.SimulateBorrow(ctx, cfg, amount, g.custody, caller)
	if err != nil {
		return nil, g.reject(model.ExecBorrow, apperrors.NewUpstream("borrow simulation failed", err))
	}
	txHash, err := g.ledger.Borrow(ctx, cfg, amount, g.custody, caller)
	if err != nil {
		return nil, g.reject(model.ExecBorrow, apperrors.NewUpstream("borrow failed", err))
	}

	g.finish(model.ExecBorrow, tenant, caller, cfg.ID(), simAssets, simShares, txHash)
	return &model.ExecutionResponse{
		MarketID: cfg.ID().Hex(),
		Assets:   simAssets.String(),
		Shares:   simShares.String(),
		TxHash:   txHash.Hex(),
	}, nil
}

// Withdraw pulls supplied loan assets back out to the caller.
func (g *GatewayService) Withdraw(ctx context.Context, tenant *model.Tenant, req model.WithdrawRequest) (*model.ExecutionResponse, error) {
	return g.exit(ctx, tenant, req, model.ExecWithdraw, "withdraw", g.ledger.Withdraw)
}

// WithdrawCollateral pulls posted collateral back out to the caller.
func (g *GatewayService) WithdrawCollateral(ctx context.Context, tenant *model.Tenant, req model.WithdrawRequest) (*model.ExecutionResponse, error) {
	return g.exit(ctx, tenant, req, model.ExecWithdrawCollateral, "withdraw collateral", g.ledger.WithdrawCollateral)
}

type exitFn func(ctx context.Context, cfg model.MarketConfig, assets *big.Int, onBehalf, receiver common.Address) (common.Hash, error)

func (g *GatewayService) exit(ctx context.Context, tenant *model.Tenant, req model.WithdrawRequest, kind model.ExecutionKind, op string, fn exitFn) (*model.ExecutionResponse, error) {
	cfg, amount, err := g.validateOp(ctx, req.Market, req.Amount, op)
	if err != nil {
		return nil, g.reject(kind, err)
	}

	caller := g.callerFor(tenant)
	if err := g.guard.enter(caller); err != nil {
		return nil, g.reject(kind, err)
	}
	defer g.guard.exit(caller)

	txHash, err := fn(ctx, cfg, amount, g.custody, caller)
	if err != nil {
		return nil, g.reject(kind, apperrors.NewUpstream(op+" failed", err))
	}

	g.finish(kind, tenant, caller, cfg.ID(), amount, nil, txHash)
	return &model.ExecutionResponse{
		MarketID: cfg.ID().Hex(),
		Assets:   amount.String(),
		TxHash:   txHash.Hex(),
	}, nil
}

// Repay pays down the custody position's debt with the caller's assets.
func (g *GatewayService) Repay(ctx context.Context, tenant *model.Tenant, req model.WithdrawRequest) (*model.ExecutionResponse, error) {
	cfg, amount, err := g.validateOp(ctx, req.Market, req.Amount, "repay")
	if err != nil {
		return nil, g.reject(model.ExecRepay, err)
	}

	caller := g.callerFor(tenant)
	if err := g.guard.enter(caller); err != nil {
		return nil, g.reject(model.ExecRepay, err)
	}
	defer g.guard.exit(caller)

	if err := g.collect(ctx, cfg.LoanToken, caller, amount); err != nil {
		return nil, g.reject(model.ExecRepay, err)
	}
	txHash, err := g.ledger.Repay(ctx, cfg, amount, g.custody)
	if err != nil {
		return nil, g.reject(model.ExecRepay, apperrors.NewUpstream("repay failed", err))
	}

	g.finish(model.ExecRepay, tenant, caller, cfg.ID(), amount, nil, txHash)
	return &model.ExecutionResponse{
		MarketID: cfg.ID().Hex(),
		Assets:   amount.String(),
		TxHash:   txHash.Hex(),
	}, nil
}

// MarketInfo reads the market state and joins it with the gateway-side
// efficiency figure and derived rate views. Tracked markets are served
// from the refresh cache while fresh; anything else is a live chain read.
func (g *GatewayService) MarketInfo(ctx context.Context, params model.MarketParams) (*model.MarketInfoResponse, error) {
	cfg, err := params.ToConfig()
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidMarket, err.Error(), err)
	}
	id := cfg.ID()

	var state *model.MarketState
	if g.states != nil {
		if cached, fetchedAt, ok := g.states.Get(id); ok && time.Since(fetchedAt) <= stateMaxAge {
			state = cached
		}
	}
	if state == nil {
		state, err = g.ledger.Market(ctx, id)
		if err != nil {
			return nil, apperrors.NewUpstream("market read failed", err)
		}
	}
	eff, err := g.efficiency.Efficiency(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	resp := &model.MarketInfoResponse{
		MarketID:    id.Hex(),
		State:       state,
		Efficiency:  eff,
		BorrowRate:  "0",
		BorrowAPR:   "0",
		Utilization: "0",
	}
	if g.rates != nil {
		rate, err := g.rates.BorrowRate(ctx, cfg, state)
		if err != nil {
			return nil, apperrors.NewUpstream("borrow rate read failed", err)
		}
		resp.BorrowRate = rate.String()
		resp.BorrowAPR = decimal.NewFromBigInt(rate, -18).
			Mul(decimal.NewFromInt(secondsPerYear)).
			Round(6).String()
	}
	if state.TotalSupplyAssets.Sign() > 0 {
		resp.Utilization = decimal.NewFromBigInt(state.TotalBorrowAssets, 0).
			Div(decimal.NewFromBigInt(state.TotalSupplyAssets, 0)).
			Round(6).String()
	}
	return resp, nil
}

// Efficiency returns the matched-volume percentage for a market id.
func (g *GatewayService) Efficiency(ctx context.Context, idHex string) (int, error) {
	id, err := model.MarketIDFromHex(idHex)
	if err != nil {
		return 0, apperrors.NewInvalidRequest(err.Error())
	}
	eff, err := g.efficiency.Efficiency(ctx, id)
	if err != nil {
		return 0, apperrors.Wrap(err)
	}
	return eff, nil
}

// EmergencyRecover sends stray token balances held by the custody
// account back to the owner. Owner only.
func (g *GatewayService) EmergencyRecover(ctx context.Context, caller common.Address, req model.RecoverRequest) (*model.ExecutionResponse, error) {
	if !g.isOwner(caller) {
		return nil, g.reject(model.ExecRecover, apperrors.Newf(apperrors.ErrUnauthorized,
			"recover: caller %s is not the owner", caller.Hex()))
	}
	if !common.IsHexAddress(req.Token) {
		return nil, g.reject(model.ExecRecover, apperrors.NewInvalidRequest("token: not a hex address"))
	}
	amount, err := model.ParseBig(req.Amount)
	if err != nil {
		return nil, g.reject(model.ExecRecover, apperrors.NewInvalidRequest("amount: "+err.Error()))
	}
	if amount.Sign() <= 0 {
		return nil, g.reject(model.ExecRecover, apperrors.NewZeroAmount("recover"))
	}

	owner := g.Owner()
	txHash, err := g.tokens.Transfer(ctx, common.HexToAddress(req.Token), owner, amount)
	if err != nil {
		return nil, g.reject(model.ExecRecover, apperrors.NewUpstream("recover transfer failed", err))
	}

	g.finish(model.ExecRecover, nil, caller, model.MarketID{}, amount, nil, txHash)
	logger.Warn("emergency recovery executed", "token", req.Token, "amount", amount.String(), "owner", owner.Hex())
	return &model.ExecutionResponse{
		Assets: amount.String(),
		TxHash: txHash.Hex(),
	}, nil
}

// TransferOwnership hands admin control to a new owner address.
func (g *GatewayService) TransferOwnership(caller common.Address, req model.OwnershipRequest) error {
	if !common.IsHexAddress(req.NewOwner) {
		return apperrors.NewInvalidRequest("new_owner: not a hex address")
	}
	newOwner := common.HexToAddress(req.NewOwner)
	if newOwner == (common.Address{}) {
		return apperrors.NewInvalidRequest("new_owner: zero address")
	}

	g.ownerMu.Lock()
	defer g.ownerMu.Unlock()
	if caller != g.owner {
		return apperrors.Newf(apperrors.ErrUnauthorized, "ownership: caller %s is not the owner", caller.Hex())
	}
	logger.Warn("ownership transferred", "from", g.owner.Hex(), "to", newOwner.Hex())
	g.owner = newOwner
	return nil
}

func (g *GatewayService) Owner() common.Address {
	g.ownerMu.RLock()
	defer g.ownerMu.RUnlock()
	return g.owner
}

func (g *GatewayService) isOwner(addr common.Address) bool {
	return addr == g.Owner()
}

// validateOp runs the shared pre-flight: amount parsing and positivity,
// static market validation, and the rate model code check.
func (g *GatewayService) validateOp(ctx context.Context, params model.MarketParams, rawAmount, op string) (model.MarketConfig, *big.Int, error) {
	cfg, err := params.ToConfig()
	if err != nil {
		return model.MarketConfig{}, nil, apperrors.NewInvalidRequest(err.Error())
	}
	amount, err := model.ParseBig(rawAmount)
	if err != nil {
		return model.MarketConfig{}, nil, apperrors.NewInvalidRequest("amount: " + err.Error())
	}
	if amount.Sign() <= 0 {
		return model.MarketConfig{}, nil, apperrors.NewZeroAmount(op)
	}
	if err := cfg.Validate(); err != nil {
		return model.MarketConfig{}, nil, apperrors.New(apperrors.ErrInvalidMarket, err.Error(), err)
	}
	if g.codes != nil {
		hasCode, err := g.codes.HasCode(ctx, cfg.RateModel)
		if err != nil {
			return model.MarketConfig{}, nil, apperrors.NewUpstream("rate model code check failed", err)
		}
		if !hasCode {
			return model.MarketConfig{}, nil, apperrors.Newf(apperrors.ErrInvalidMarket,
				"rate model %s has no deployed code", cfg.RateModel.Hex())
		}
	}
	return cfg, amount, nil
}

// collect pulls tokens from the caller into custody and makes sure the
// ledger can spend them. The unlimited approval is issued at most once
// per token via the allowance manager.
func (g *GatewayService) collect(ctx context.Context, token, caller common.Address, amount *big.Int) error {
	if caller != g.custody && g.tokens != nil {
		if _, err := g.tokens.TransferFrom(ctx, token, caller, g.custody, amount); err != nil {
			return apperrors.NewUpstream("token transfer failed", err)
		}
	}
	if g.allowances != nil {
		if _, err := g.allowances.EnsureApproval(ctx, token, g.ledgerAddr, amount); err != nil {
			return apperrors.NewUpstream("token approval failed", err)
		}
	}
	return nil
}

func (g *GatewayService) callerFor(tenant *model.Tenant) common.Address {
	if tenant != nil && common.IsHexAddress(tenant.Account.Address) {
		return common.HexToAddress(tenant.Account.Address)
	}
	return g.custody
}

func (g *GatewayService) reject(kind model.ExecutionKind, err error) error {
	metrics.OperationsTotal.WithLabelValues(string(kind), "error").Inc()
	return err
}

func (g *GatewayService) finish(kind model.ExecutionKind, tenant *model.Tenant, caller common.Address, id model.MarketID, assets, shares *big.Int, txHash common.Hash) {
	metrics.OperationsTotal.WithLabelValues(string(kind), "ok").Inc()
	if g.events == nil {
		return
	}
	ev := model.ExecutionEvent{
		Kind:   kind,
		Caller: caller.Hex(),
		Assets: assets.String(),
		TxHash: txHash.Hex(),
	}
	if id != (model.MarketID{}) {
		ev.MarketID = id.Hex()
	}
	if shares != nil {
		ev.Shares = shares.String()
	}
	if tenant != nil {
		ev.TenantID = tenant.ID
	}
	g.events.Emit(ev)
}
