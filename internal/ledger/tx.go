package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/MorphGate/morphgate/internal/manager"
	"github.com/MorphGate/morphgate/internal/pkg/logger"
	"github.com/MorphGate/morphgate/internal/signer"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Transactor sends contract calls signed with the gateway key. Shared by
// the ledger client and the ERC-20 client so they draw nonces from the
// same optimistic counter.
type Transactor struct {
	client    *ethclient.Client
	signer    *signer.Signer
	nonces    *manager.NonceManager
	waitMined bool
}

func NewTransactor(client *ethclient.Client, s *signer.Signer, nonces *manager.NonceManager, waitMined bool) *Transactor {
	return &Transactor{
		client:    client,
		signer:    s,
		nonces:    nonces,
		waitMined: waitMined,
	}
}

func (t *Transactor) From() common.Address {
	return t.signer.Address()
}

// Send builds, signs and broadcasts a dynamic-fee transaction carrying
// data to the contract at to. When waitMined is set it blocks until the
// receipt is available and fails on a reverted execution.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	from := t.signer.Address()

	nonce, err := t.nonces.GetNextTxNonce(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}

	tip, err := t.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas tip: %w", err)
	}
	head, err := t.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gas, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})

	signed, err := t.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, err
	}

	if err := t.client.SendTransaction(ctx, signed); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "nonce") {
			logger.Warn("Detected nonce error, triggering re-sync", "error", err)
			_ = t.nonces.ResetTxNonce(ctx, from)
		}
		return common.Hash{}, fmt.Errorf("broadcast failed: %w", err)
	}
	t.nonces.IncrementTxNonce(from)

	if t.waitMined {
		receipt, err := bind.WaitMined(ctx, t.client, signed)
		if err != nil {
			return signed.Hash(), fmt.Errorf("waiting for receipt: %w", err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return signed.Hash(), fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
		}
	}

	return signed.Hash(), nil
}

// Call performs a read-only contract call from the gateway address.
func (t *Transactor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return t.client.CallContract(ctx, ethereum.CallMsg{
		From: t.signer.Address(),
		To:   &to,
		Data: data,
	}, nil)
}
