package manager

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

type fakeApprover struct {
	allowances map[allowanceKey]*big.Int
	owner      common.Address
	approves   int
}

func newFakeApprover(owner common.Address) *fakeApprover {
	return &fakeApprover{
		allowances: make(map[allowanceKey]*big.Int),
		owner:      owner,
	}
}

func (f *fakeApprover) Allowance(_ context.Context, token, _, spender common.Address) (*big.Int, error) {
	if v, ok := f.allowances[allowanceKey{token, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeApprover) Approve(_ context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.approves++
	f.allowances[allowanceKey{token, spender}] = new(big.Int).Set(amount)
	return common.Hash{}, nil
}

func TestEnsureApprovalIsIdempotent(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	approver := newFakeApprover(owner)
	m := NewAllowanceManager(approver, owner)

	issued, err := m.EnsureApproval(context.Background(), token, spender, big.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !issued {
		t.Fatalf("expected first call to issue an approval")
	}

	issued, err = m.EnsureApproval(context.Background(), token, spender, big.NewInt(5000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued {
		t.Fatalf("expected second call to reuse the existing allowance")
	}
	if approver.approves != 1 {
		t.Fatalf("expected exactly one approval tx, got %d", approver.approves)
	}
}

func TestEnsureApprovalSkipsWhenPreexisting(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	approver := newFakeApprover(owner)
	approver.allowances[allowanceKey{token, spender}] = new(big.Int).Set(math.MaxBig256)

	m := NewAllowanceManager(approver, owner)
	issued, err := m.EnsureApproval(context.Background(), token, spender, big.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued || approver.approves != 0 {
		t.Fatalf("expected no approval when allowance already unlimited")
	}
}
