package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorphGate/morphgate/internal/manager"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
)

var (
	testCustody = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testLedger  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testOwner   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testCaller  = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

func testMarketParams() model.MarketParams {
	return model.MarketParams{
		LoanToken:       "0xaaa0000000000000000000000000000000000001",
		CollateralToken: "0xbbb0000000000000000000000000000000000002",
		Oracle:          "0xccc0000000000000000000000000000000000003",
		RateModel:       "0xddd0000000000000000000000000000000000004",
		LLTV:            "800000000000000000", // 0.8 in WAD
	}
}

// fakeLedger stands in for the on-chain protocol. Simulated results are
// scripted per test; mutating calls are counted.
type fakeLedger struct {
	simAssets *big.Int
	simShares *big.Int
	position  *model.Position
	state     *model.MarketState

	supplyCalls  int
	borrowCalls  int
	collatCalls  int
	marketCalls  int
	onSimulate   func()
	simulateErr  error
	noCodeAddrs  map[common.Address]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		simAssets: big.NewInt(1000),
		simShares: big.NewInt(1000),
		position: &model.Position{
			SupplyShares: big.NewInt(0),
			BorrowShares: big.NewInt(0),
			Collateral:   big.NewInt(0),
		},
		state: &model.MarketState{
			TotalSupplyAssets: big.NewInt(0),
			TotalSupplyShares: big.NewInt(0),
			TotalBorrowAssets: big.NewInt(0),
			TotalBorrowShares: big.NewInt(0),
			Fee:               big.NewInt(0),
		},
		noCodeAddrs: make(map[common.Address]bool),
	}
}

func (f *fakeLedger) SimulateSupply(_ context.Context, _ model.MarketConfig, _ *big.Int, _ common.Address) (*big.Int, *big.Int, error) {
	if f.onSimulate != nil {
		f.onSimulate()
	}
	if f.simulateErr != nil {
		return nil, nil, f.simulateErr
	}
	return f.simAssets, f.simShares, nil
}

func (f *fakeLedger) Supply(_ context.Context, _ model.MarketConfig, _ *big.Int, _ common.Address) (common.Hash, error) {
	f.supplyCalls++
	return common.HexToHash("0x01"), nil
}

func (f *fakeLedger) SupplyCollateral(_ context.Context, _ model.MarketConfig, _ *big.Int, _ common.Address) (common.Hash, error) {
	f.collatCalls++
	return common.HexToHash("0x02"), nil
}

func (f *fakeLedger) SimulateBorrow(_ context.Context, _ model.MarketConfig, assets *big.Int, _, _ common.Address) (*big.Int, *big.Int, error) {
	return assets, assets, nil
}

func (f *fakeLedger) Borrow(_ context.Context, _ model.MarketConfig, _ *big.Int, _, _ common.Address) (common.Hash, error) {
	f.borrowCalls++
	return common.HexToHash("0x03"), nil
}

func (f *fakeLedger) Withdraw(_ context.Context, _ model.MarketConfig, _ *big.Int, _, _ common.Address) (common.Hash, error) {
	return common.HexToHash("0x04"), nil
}

func (f *fakeLedger) WithdrawCollateral(_ context.Context, _ model.MarketConfig, _ *big.Int, _, _ common.Address) (common.Hash, error) {
	return common.HexToHash("0x05"), nil
}

func (f *fakeLedger) Repay(_ context.Context, _ model.MarketConfig, _ *big.Int, _ common.Address) (common.Hash, error) {
	return common.HexToHash("0x06"), nil
}

func (f *fakeLedger) Position(_ context.Context, _ model.MarketID, _ common.Address) (*model.Position, error) {
	return f.position, nil
}

func (f *fakeLedger) Market(_ context.Context, _ model.MarketID) (*model.MarketState, error) {
	f.marketCalls++
	return f.state, nil
}

func (f *fakeLedger) BorrowRate(_ context.Context, _ model.MarketConfig, _ *model.MarketState) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeLedger) HasCode(_ context.Context, addr common.Address) (bool, error) {
	return !f.noCodeAddrs[addr], nil
}

type fakeToken struct {
	transferFromCalls int
	approveCalls      int
	transferCalls     int
	allowances        map[common.Address]*big.Int
}

func newFakeToken() *fakeToken {
	return &fakeToken{allowances: make(map[common.Address]*big.Int)}
}

func (f *fakeToken) BalanceOf(_ context.Context, _, _ common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeToken) Allowance(_ context.Context, token, _, _ common.Address) (*big.Int, error) {
	if a, ok := f.allowances[token]; ok {
		return a, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeToken) Approve(_ context.Context, token, _ common.Address, amount *big.Int) (common.Hash, error) {
	f.approveCalls++
	f.allowances[token] = amount
	return common.HexToHash("0x0a"), nil
}

func (f *fakeToken) Transfer(_ context.Context, _, _ common.Address, _ *big.Int) (common.Hash, error) {
	f.transferCalls++
	return common.HexToHash("0x0b"), nil
}

func (f *fakeToken) TransferFrom(_ context.Context, _, _, _ common.Address, _ *big.Int) (common.Hash, error) {
	f.transferFromCalls++
	return common.HexToHash("0x0c"), nil
}

func newTestGateway(l *fakeLedger, tok *fakeToken) *GatewayService {
	return NewGatewayService(GatewayDeps{
		Ledger:     l,
		Rates:      l,
		Tokens:     tok,
		Codes:      l,
		Allowances: manager.NewAllowanceManager(tok, testCustody),
		Efficiency: NewEfficiencyEngine(NewVolumeStore()),
		Custody:    testCustody,
		LedgerAddr: testLedger,
		Owner:      testOwner,
	})
}

func testTenant() *model.Tenant {
	return &model.Tenant{
		ID:      "tenant-1",
		Name:    "Test Tenant",
		ApiKey:  "sk-test",
		Account: model.AccountCreds{Address: testCaller.Hex()},
	}
}

func TestSupplyRejectsZeroAmount(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "0",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrZeroAmount}))
}

func TestSupplyRejectsNegativeAmount(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "-5",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrInvalidRequest}))
}

func TestSupplyRejectsZeroLoanToken(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	params := testMarketParams()
	params.LoanToken = "0x0000000000000000000000000000000000000000"
	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: params,
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrInvalidMarket}))
}

func TestSupplyRejectsLLTVAboveOne(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	params := testMarketParams()
	params.LLTV = "1000000000000000001" // just above WAD
	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: params,
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrInvalidMarket}))
}

func TestSupplyRejectsRateModelWithoutCode(t *testing.T) {
	l := newFakeLedger()
	l.noCodeAddrs[common.HexToAddress("0xddd0000000000000000000000000000000000004")] = true
	gw := newTestGateway(l, newFakeToken())

	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrInvalidMarket}))
}

func TestSupplySlippageAbortsBeforeTokenMovement(t *testing.T) {
	l := newFakeLedger()
	l.simShares = big.NewInt(900)
	tok := newFakeToken()
	gw := newTestGateway(l, tok)

	_, err := gw.SupplyWithProtection(context.Background(), testTenant(), model.SupplyRequest{
		Market:    testMarketParams(),
		Amount:    "1000",
		MinShares: "950",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrSlippageExceeded}))

	// slippage must fail closed: nothing moved, nothing approved
	assert.Zero(t, tok.transferFromCalls)
	assert.Zero(t, tok.approveCalls)
	assert.Zero(t, l.supplyCalls)
}

func TestSupplyExactMinSharesSucceeds(t *testing.T) {
	l := newFakeLedger()
	l.simShares = big.NewInt(950)
	gw := newTestGateway(l, newFakeToken())

	resp, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market:    testMarketParams(),
		Amount:    "1000",
		MinShares: "950",
	})
	require.NoError(t, err)
	assert.Equal(t, "950", resp.Shares)
	assert.Equal(t, 1, l.supplyCalls)
}

func TestSupplyRecordsFiftyPercentEfficiency(t *testing.T) {
	l := newFakeLedger()
	l.simShares = big.NewInt(1000)
	gw := newTestGateway(l, newFakeToken())

	resp, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "1000",
	})
	require.NoError(t, err)

	eff, err := gw.Efficiency(context.Background(), resp.MarketID)
	require.NoError(t, err)
	assert.Equal(t, 50, eff)
}

func TestSupplyPullsTokensFromTenantAccount(t *testing.T) {
	tok := newFakeToken()
	gw := newTestGateway(newFakeLedger(), tok)

	_, err := gw.SupplyWithProtection(context.Background(), testTenant(), model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "1000",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tok.transferFromCalls)
	assert.Equal(t, 1, tok.approveCalls)
}

func TestSupplyApprovalIsIdempotent(t *testing.T) {
	tok := newFakeToken()
	gw := newTestGateway(newFakeLedger(), tok)

	for i := 0; i < 3; i++ {
		_, err := gw.SupplyWithProtection(context.Background(), testTenant(), model.SupplyRequest{
			Market: testMarketParams(),
			Amount: "1000",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tok.approveCalls)
	assert.Equal(t, 3, tok.transferFromCalls)
}

func TestBorrowAtCollateralBoundary(t *testing.T) {
	l := newFakeLedger()
	l.position.Collateral = big.NewInt(2000)
	gw := newTestGateway(l, newFakeToken())

	// collateral 2000 at LLTV 0.8 caps the borrow at exactly 1600
	resp, err := gw.BorrowWithHealthCheck(context.Background(), nil, model.BorrowRequest{
		Market: testMarketParams(),
		Amount: "1600",
	})
	require.NoError(t, err)
	assert.Equal(t, "1600", resp.Assets)
	assert.Equal(t, 1, l.borrowCalls)
}

func TestBorrowAboveCollateralBoundaryFails(t *testing.T) {
	l := newFakeLedger()
	l.position.Collateral = big.NewInt(2000)
	gw := newTestGateway(l, newFakeToken())

	_, err := gw.BorrowWithHealthCheck(context.Background(), nil, model.BorrowRequest{
		Market: testMarketParams(),
		Amount: "1601",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrInsufficientCollateral}))
	assert.Zero(t, l.borrowCalls)
}

func TestBorrowWithoutCollateralFails(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	_, err := gw.BorrowWithHealthCheck(context.Background(), nil, model.BorrowRequest{
		Market: testMarketParams(),
		Amount: "1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrInsufficientCollateral}))
}

func TestReentrantSupplyRejected(t *testing.T) {
	l := newFakeLedger()
	tok := newFakeToken()
	gw := newTestGateway(l, tok)

	var nestedErr error
	l.onSimulate = func() {
		inner := l.onSimulate
		l.onSimulate = nil // only recurse once
		defer func() { l.onSimulate = inner }()
		_, nestedErr = gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
			Market: testMarketParams(),
			Amount: "10",
		})
	}

	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "1000",
	})
	require.NoError(t, err)
	require.Error(t, nestedErr)
	assert.True(t, errors.Is(nestedErr, &apperrors.AppError{Type: apperrors.ErrReentrantCall}))
	assert.Equal(t, 1, l.supplyCalls)
}

func TestGuardReleasedAfterFailure(t *testing.T) {
	l := newFakeLedger()
	l.simulateErr = errors.New("rpc down")
	gw := newTestGateway(l, newFakeToken())

	req := model.SupplyRequest{Market: testMarketParams(), Amount: "1000"}
	_, err := gw.SupplyWithProtection(context.Background(), nil, req)
	require.Error(t, err)

	// a failed attempt must not leave the account locked
	l.simulateErr = nil
	_, err = gw.SupplyWithProtection(context.Background(), nil, req)
	require.NoError(t, err)
}

func TestRiskRejectsRestrictedMarket(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	params := testMarketParams()
	cfg, err := params.ToConfig()
	require.NoError(t, err)

	tenant := testTenant()
	tenant.Risk.RestrictedMarkets = []string{cfg.ID().Hex()}

	_, err = gw.SupplyWithProtection(context.Background(), tenant, model.SupplyRequest{
		Market: params,
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrRiskReject}))
}

func TestRiskRejectsOversizeSupply(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	tenant := testTenant()
	tenant.Risk.MaxSupplyAssets = "500"

	_, err := gw.SupplyWithProtection(context.Background(), tenant, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "501",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrRiskReject}))
}

func TestEmergencyRecoverRequiresOwner(t *testing.T) {
	tok := newFakeToken()
	gw := newTestGateway(newFakeLedger(), tok)

	_, err := gw.EmergencyRecover(context.Background(), testCaller, model.RecoverRequest{
		Token:  "0xaaa0000000000000000000000000000000000001",
		Amount: "100",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrUnauthorized}))
	assert.Zero(t, tok.transferCalls)
}

func TestEmergencyRecoverSendsToOwner(t *testing.T) {
	tok := newFakeToken()
	gw := newTestGateway(newFakeLedger(), tok)

	resp, err := gw.EmergencyRecover(context.Background(), testOwner, model.RecoverRequest{
		Token:  "0xaaa0000000000000000000000000000000000001",
		Amount: "100",
	})
	require.NoError(t, err)
	assert.Equal(t, "100", resp.Assets)
	assert.Equal(t, 1, tok.transferCalls)
}

func TestTransferOwnership(t *testing.T) {
	gw := newTestGateway(newFakeLedger(), newFakeToken())

	newOwner := common.HexToAddress("0x5000000000000000000000000000000000000005")
	err := gw.TransferOwnership(testCaller, model.OwnershipRequest{NewOwner: newOwner.Hex()})
	require.Error(t, err)

	err = gw.TransferOwnership(testOwner, model.OwnershipRequest{NewOwner: newOwner.Hex()})
	require.NoError(t, err)
	assert.Equal(t, newOwner, gw.Owner())

	// old owner lost control
	err = gw.TransferOwnership(testOwner, model.OwnershipRequest{NewOwner: testOwner.Hex()})
	require.Error(t, err)
}

func TestMarketInfoIncludesEfficiency(t *testing.T) {
	l := newFakeLedger()
	l.state.TotalSupplyAssets = big.NewInt(2000)
	l.state.TotalBorrowAssets = big.NewInt(500)
	gw := newTestGateway(l, newFakeToken())

	_, err := gw.SupplyWithProtection(context.Background(), nil, model.SupplyRequest{
		Market: testMarketParams(),
		Amount: "1000",
	})
	require.NoError(t, err)

	info, err := gw.MarketInfo(context.Background(), testMarketParams())
	require.NoError(t, err)
	assert.Equal(t, 50, info.Efficiency)
	assert.Equal(t, "0.25", info.Utilization)
}

// fakeStateCache scripts the tracked-market cache for MarketInfo.
type fakeStateCache struct {
	state     *model.MarketState
	fetchedAt time.Time
}

func (f *fakeStateCache) Get(_ model.MarketID) (*model.MarketState, time.Time, bool) {
	if f.state == nil {
		return nil, time.Time{}, false
	}
	return f.state, f.fetchedAt, true
}

func newTestGatewayWithCache(l *fakeLedger, cache StateCache) *GatewayService {
	return NewGatewayService(GatewayDeps{
		Ledger:     l,
		Rates:      l,
		Tokens:     newFakeToken(),
		Codes:      l,
		Allowances: manager.NewAllowanceManager(newFakeToken(), testCustody),
		Efficiency: NewEfficiencyEngine(NewVolumeStore()),
		States:     cache,
		Custody:    testCustody,
		LedgerAddr: testLedger,
		Owner:      testOwner,
	})
}

func TestMarketInfoServesFreshCachedState(t *testing.T) {
	l := newFakeLedger()
	cache := &fakeStateCache{
		state: &model.MarketState{
			TotalSupplyAssets: big.NewInt(4000),
			TotalSupplyShares: big.NewInt(4000),
			TotalBorrowAssets: big.NewInt(1000),
			TotalBorrowShares: big.NewInt(1000),
			Fee:               big.NewInt(0),
		},
		fetchedAt: time.Now(),
	}
	gw := newTestGatewayWithCache(l, cache)

	info, err := gw.MarketInfo(context.Background(), testMarketParams())
	require.NoError(t, err)
	assert.Equal(t, 0, l.marketCalls, "fresh cached state must not trigger a chain read")
	assert.Equal(t, "0.25", info.Utilization)
}

func TestMarketInfoFallsBackWhenCacheStale(t *testing.T) {
	l := newFakeLedger()
	l.state.TotalSupplyAssets = big.NewInt(2000)
	l.state.TotalBorrowAssets = big.NewInt(1000)
	cache := &fakeStateCache{
		state: &model.MarketState{
			TotalSupplyAssets: big.NewInt(1),
			TotalSupplyShares: big.NewInt(1),
			TotalBorrowAssets: big.NewInt(1),
			TotalBorrowShares: big.NewInt(1),
			Fee:               big.NewInt(0),
		},
		fetchedAt: time.Now().Add(-2 * time.Minute),
	}
	gw := newTestGatewayWithCache(l, cache)

	info, err := gw.MarketInfo(context.Background(), testMarketParams())
	require.NoError(t, err)
	assert.Equal(t, 1, l.marketCalls, "stale cache entry must fall back to a chain read")
	assert.Equal(t, "0.5", info.Utilization)
}

func TestMarketInfoFallsBackWhenUntracked(t *testing.T) {
	l := newFakeLedger()
	l.state.TotalSupplyAssets = big.NewInt(1000)
	gw := newTestGatewayWithCache(l, &fakeStateCache{})

	_, err := gw.MarketInfo(context.Background(), testMarketParams())
	require.NoError(t, err)
	assert.Equal(t, 1, l.marketCalls)
}
