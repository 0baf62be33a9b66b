package model

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() MarketConfig {
	lltv, _ := new(big.Int).SetString("800000000000000000", 10)
	return MarketConfig{
		LoanToken:       common.HexToAddress("0xaaa0000000000000000000000000000000000001"),
		CollateralToken: common.HexToAddress("0xbbb0000000000000000000000000000000000002"),
		Oracle:          common.HexToAddress("0xccc0000000000000000000000000000000000003"),
		RateModel:       common.HexToAddress("0xddd0000000000000000000000000000000000004"),
		LLTV:            lltv,
	}
}

func TestMarketIDDeterministic(t *testing.T) {
	a := validConfig().ID()
	b := validConfig().ID()
	assert.Equal(t, a, b)
}

func TestMarketIDChangesWithAnyParameter(t *testing.T) {
	base := validConfig().ID()

	altered := validConfig()
	altered.Oracle = common.HexToAddress("0xccc0000000000000000000000000000000000099")
	assert.NotEqual(t, base, altered.ID())

	altered = validConfig()
	altered.LLTV = big.NewInt(1)
	assert.NotEqual(t, base, altered.ID())
}

func TestMarketIDHexRoundTrip(t *testing.T) {
	id := validConfig().ID()
	parsed, err := MarketIDFromHex(id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestMarketIDFromHexRejectsBadInput(t *testing.T) {
	_, err := MarketIDFromHex("0x1234")
	assert.Error(t, err)

	_, err = MarketIDFromHex("not-hex")
	assert.Error(t, err)
}

func TestValidateAcceptsFullScale(t *testing.T) {
	cfg := validConfig()
	cfg.LLTV = new(big.Int).Set(WAD)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroAddresses(t *testing.T) {
	for _, mutate := range []func(*MarketConfig){
		func(c *MarketConfig) { c.LoanToken = common.Address{} },
		func(c *MarketConfig) { c.CollateralToken = common.Address{} },
		func(c *MarketConfig) { c.Oracle = common.Address{} },
		func(c *MarketConfig) { c.RateModel = common.Address{} },
	} {
		cfg := validConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestValidateRejectsBadLLTV(t *testing.T) {
	cfg := validConfig()
	cfg.LLTV = big.NewInt(0)
	assert.Error(t, cfg.Validate())

	cfg.LLTV = nil
	assert.Error(t, cfg.Validate())

	cfg.LLTV = new(big.Int).Add(WAD, big.NewInt(1))
	assert.Error(t, cfg.Validate())
}

func TestToConfigParsesWireForm(t *testing.T) {
	params := MarketParams{
		LoanToken:       "0xaaa0000000000000000000000000000000000001",
		CollateralToken: "0xbbb0000000000000000000000000000000000002",
		Oracle:          "0xccc0000000000000000000000000000000000003",
		RateModel:       "0xddd0000000000000000000000000000000000004",
		LLTV:            "800000000000000000",
	}
	cfg, err := params.ToConfig()
	require.NoError(t, err)
	assert.Equal(t, validConfig().ID(), cfg.ID())
}

func TestToConfigRejectsMalformedAddress(t *testing.T) {
	params := MarketParams{
		LoanToken: "zzz",
		LLTV:      "1",
	}
	_, err := params.ToConfig()
	assert.Error(t, err)
}

func TestParseBig(t *testing.T) {
	v, err := ParseBig("12345678901234567890123456789")
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890123456789", v.String())

	v, err = ParseBig("")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	_, err = ParseBig("-1")
	assert.Error(t, err)

	_, err = ParseBig("1.5")
	assert.Error(t, err)

	_, err = ParseBig("0x10")
	assert.Error(t, err)
}
