package manager

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/MorphGate/morphgate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// TokenApprover is the slice of the token surface the allowance manager
// needs. Satisfied by ledger.Token.
type TokenApprover interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
}

type allowanceKey struct {
	token   common.Address
	spender common.Address
}

// AllowanceManager grants the ledger an unlimited allowance on each asset
// exactly once. The current allowance is re-checked before approving, so a
// sufficient grant from a previous run never triggers a redundant approval
// transaction.
type AllowanceManager struct {
	token TokenApprover
	owner common.Address

	mu      sync.Mutex
	granted map[allowanceKey]bool
}

func NewAllowanceManager(token TokenApprover, owner common.Address) *AllowanceManager {
	return &AllowanceManager{
		token:   token,
		owner:   owner,
		granted: make(map[allowanceKey]bool),
	}
}

// EnsureApproval makes sure spender can pull at least needed of token from
// the gateway account. Returns true when an approval transaction was issued.
func (m *AllowanceManager) EnsureApproval(ctx context.Context, token, spender common.Address, needed *big.Int) (bool, error) {
	key := allowanceKey{token: token, spender: spender}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.granted[key] {
		return false, nil
	}

	current, err := m.token.Allowance(ctx, token, m.owner, spender)
	if err != nil {
		return false, fmt.Errorf("failed to read allowance: %w", err)
	}
	if current.Cmp(needed) >= 0 {
		// Already sufficient; remember unlimited grants so we skip the
		// read next time.
		if current.Cmp(math.MaxBig256) == 0 {
			m.granted[key] = true
		}
		return false, nil
	}

	if _, err := m.token.Approve(ctx, token, spender, math.MaxBig256); err != nil {
		return false, fmt.Errorf("failed to approve: %w", err)
	}
	m.granted[key] = true
	logger.Info("Granted unlimited allowance", "token", token.Hex(), "spender", spender.Hex())
	return true, nil
}
