package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestSigner_SignTx(t *testing.T) {
	key, _ := crypto.GenerateKey()
	keyBytes := crypto.FromECDSA(key)
	keyHex := hexutil.Encode(keyBytes)[2:] // Remove 0x

	s, err := NewSigner(keyHex, 1)
	assert.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	})

	signed, err := s.SignTx(tx)
	assert.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	assert.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestSigner_RejectsEmptyKey(t *testing.T) {
	_, err := NewSigner("", 1)
	assert.Error(t, err)

	_, err = NewSigner("0x", 1)
	assert.Error(t, err)
}
