package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// WAD is the fixed-point scale used for LLTV values (1e18 = 100%).
var WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// MarketID is the deterministic identifier of a market: the keccak256 hash
// of the ABI-encoded market parameters, matching the ledger's own ids.
type MarketID [32]byte

func (id MarketID) Hex() string {
	return hexutil.Encode(id[:])
}

func (id MarketID) String() string {
	return id.Hex()
}

// MarketIDFromHex parses a 0x-prefixed 32-byte hex string.
func MarketIDFromHex(s string) (MarketID, error) {
	var id MarketID
	raw, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid market id: %w", err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("invalid market id length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MarketConfig identifies a lending pair on the external ledger.
// Immutable once constructed; everything else keys off ID().
type MarketConfig struct {
	LoanToken       common.Address `json:"loan_token"`
	CollateralToken common.Address `json:"collateral_token"`
	Oracle          common.Address `json:"oracle"`
	RateModel       common.Address `json:"rate_model"`
	LLTV            *big.Int       `json:"lltv"`
}

// ID returns the market identifier: keccak256 over the five parameters,
// each encoded as a 32-byte word (addresses left-padded, LLTV big-endian).
func (m MarketConfig) ID() MarketID {
	buf := make([]byte, 0, 5*32)
	buf = append(buf, common.LeftPadBytes(m.LoanToken.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(m.CollateralToken.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(m.Oracle.Bytes(), 32)...)
	buf = append(buf, common.LeftPadBytes(m.RateModel.Bytes(), 32)...)
	lltv := m.LLTV
	if lltv == nil {
		lltv = new(big.Int)
	}
	buf = append(buf, common.LeftPadBytes(lltv.Bytes(), 32)...)

	var id MarketID
	copy(id[:], crypto.Keccak256(buf))
	return id
}

// Validate runs the static parameter checks: all four addresses non-zero
// and LLTV in (0, WAD]. Bytecode existence of the rate model is checked
// separately by the gateway because it needs a chain read.
func (m MarketConfig) Validate() error {
	zero := common.Address{}
	switch {
	case m.LoanToken == zero:
		return fmt.Errorf("loan token address is zero")
	case m.CollateralToken == zero:
		return fmt.Errorf("collateral token address is zero")
	case m.Oracle == zero:
		return fmt.Errorf("oracle address is zero")
	case m.RateModel == zero:
		return fmt.Errorf("rate model address is zero")
	}
	if m.LLTV == nil || m.LLTV.Sign() <= 0 {
		return fmt.Errorf("lltv must be positive")
	}
	if m.LLTV.Cmp(WAD) > 0 {
		return fmt.Errorf("lltv %s exceeds scale", m.LLTV.String())
	}
	return nil
}
