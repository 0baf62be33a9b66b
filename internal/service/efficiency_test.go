package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorphGate/morphgate/internal/model"
)

func testMarketID(t *testing.T) model.MarketID {
	t.Helper()
	cfg, err := testMarketParams().ToConfig()
	require.NoError(t, err)
	return cfg.ID()
}

func TestEfficiencyZeroBeforeAnyVolume(t *testing.T) {
	engine := NewEfficiencyEngine(NewVolumeStore())

	eff, err := engine.Efficiency(context.Background(), testMarketID(t))
	require.NoError(t, err)
	assert.Equal(t, 0, eff)
}

// failingVolumeRepo simulates a storage outage.
type failingVolumeRepo struct{}

func (failingVolumeRepo) GetVolume(context.Context, string) (*big.Int, *big.Int, error) {
	return nil, nil, errors.New("connection refused")
}

func (failingVolumeRepo) AddVolume(context.Context, string, *big.Int, *big.Int) error {
	return errors.New("connection refused")
}

func TestEfficiencyPropagatesStoreErrors(t *testing.T) {
	engine := NewEfficiencyEngine(failingVolumeRepo{})

	_, err := engine.Efficiency(context.Background(), testMarketID(t))
	assert.Error(t, err, "a storage failure must not read as zero efficiency")

	err = engine.Record(context.Background(), testMarketID(t), big.NewInt(10))
	assert.Error(t, err)
}

func TestEfficiencyFiftyAfterEvenSplit(t *testing.T) {
	engine := NewEfficiencyEngine(NewVolumeStore())
	id := testMarketID(t)

	require.NoError(t, engine.Record(context.Background(), id, big.NewInt(1000)))

	eff, err := engine.Efficiency(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 50, eff)
}

func TestEfficiencyOddUnitLandsOnPooled(t *testing.T) {
	store := NewVolumeStore()
	engine := NewEfficiencyEngine(store)
	id := testMarketID(t)

	require.NoError(t, engine.Record(context.Background(), id, big.NewInt(7)))

	matched, pooled, err := store.GetVolume(context.Background(), id.Hex())
	require.NoError(t, err)
	assert.Equal(t, "3", matched.String())
	assert.Equal(t, "4", pooled.String())
}

func TestEfficiencyAccumulatesAcrossRecords(t *testing.T) {
	engine := NewEfficiencyEngine(NewVolumeStore())
	id := testMarketID(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, engine.Record(context.Background(), id, big.NewInt(1000)))
	}

	eff, err := engine.Efficiency(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 50, eff)
}

func TestEfficiencyIgnoresNonPositiveUnits(t *testing.T) {
	engine := NewEfficiencyEngine(NewVolumeStore())
	id := testMarketID(t)

	require.NoError(t, engine.Record(context.Background(), id, nil))
	require.NoError(t, engine.Record(context.Background(), id, big.NewInt(0)))

	eff, err := engine.Efficiency(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, eff)
}

func TestEfficiencyStaysBoundedForHugeVolumes(t *testing.T) {
	store := NewVolumeStore()
	engine := NewEfficiencyEngine(store)
	id := testMarketID(t)

	// wei-scale volume far past int64
	huge, ok := new(big.Int).SetString("100000000000000000000000000000000000000", 10)
	require.True(t, ok)
	require.NoError(t, engine.Record(context.Background(), id, huge))

	eff, err := engine.Efficiency(context.Background(), id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, eff, 0)
	assert.LessOrEqual(t, eff, 100)
	assert.Equal(t, 50, eff)
}

func TestEfficiencyRecordBounds(t *testing.T) {
	rec := model.NewEfficiencyRecord()
	assert.Equal(t, 0, rec.Efficiency())

	rec.Matched = big.NewInt(100)
	rec.Pooled = big.NewInt(0)
	assert.Equal(t, 100, rec.Efficiency())

	rec.Matched = big.NewInt(0)
	rec.Pooled = big.NewInt(100)
	assert.Equal(t, 0, rec.Efficiency())

	rec.Matched = big.NewInt(1)
	rec.Pooled = big.NewInt(2)
	assert.Equal(t, 33, rec.Efficiency())
}
