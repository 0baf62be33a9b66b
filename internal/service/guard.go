package service

import (
	"sync"

	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

// entryGuard is the re-entrancy protection for mutating operations: a
// per-account busy flag set on entry and cleared on every exit path. A
// second call for the same account while one is in flight fails with
// REENTRANT_CALL instead of queueing.
type entryGuard struct {
	mu   sync.Mutex
	busy map[common.Address]bool
}

func newEntryGuard() *entryGuard {
	return &entryGuard{busy: make(map[common.Address]bool)}
}

func (g *entryGuard) enter(account common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy[account] {
		return apperrors.New(apperrors.ErrReentrantCall, "operation already in flight for "+account.Hex(), nil)
	}
	g.busy[account] = true
	return nil
}

func (g *entryGuard) exit(account common.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, account)
}
