package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/MorphGate/morphgate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NonceManager tracks transaction nonces for the gateway key optimistically,
// so consecutive forwarded calls do not race each other on the RPC node.
type NonceManager struct {
	client *ethclient.Client

	txNonces map[common.Address]uint64
	txMu     sync.RWMutex
}

func NewNonceManager(client *ethclient.Client) *NonceManager {
	return &NonceManager{
		client:   client,
		txNonces: make(map[common.Address]uint64),
	}
}

// GetNextTxNonce returns the next expected nonce for a transaction.
// The first call for an address fetches from the chain (pending included).
func (m *NonceManager) GetNextTxNonce(ctx context.Context, addr common.Address) (uint64, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	nonce, ok := m.txNonces[addr]
	if ok {
		return nonce, nil
	}

	fetched, err := m.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	m.txNonces[addr] = fetched
	return fetched, nil
}

// IncrementTxNonce advances the local nonce. Call AFTER a successful
// broadcast.
func (m *NonceManager) IncrementTxNonce(addr common.Address) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if _, ok := m.txNonces[addr]; ok {
		m.txNonces[addr]++
	}
}

// ResetTxNonce forces a re-sync from the chain. Call on "nonce too low" or
// "replacement transaction underpriced" errors.
func (m *NonceManager) ResetTxNonce(ctx context.Context, addr common.Address) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	fetched, err := m.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return err
	}
	m.txNonces[addr] = fetched
	logger.Info("Reset TX nonce", "address", addr.Hex(), "nonce", fetched)
	return nil
}
