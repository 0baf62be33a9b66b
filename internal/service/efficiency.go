package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/metrics"
)

// VolumeRepo persists the per-market matched/pooled accumulators.
type VolumeRepo interface {
	GetVolume(ctx context.Context, marketID string) (matched, pooled *big.Int, err error)
	AddVolume(ctx context.Context, marketID string, matched, pooled *big.Int) error
}

// EfficiencyEngine derives the bounded efficiency percentage from the
// volume accumulator. Volumes only ever grow; percentages stay in [0,100]
// regardless of how much has accumulated.
type EfficiencyEngine struct {
	repo VolumeRepo
}

func NewEfficiencyEngine(repo VolumeRepo) *EfficiencyEngine {
	return &EfficiencyEngine{repo: repo}
}

// Record books units of supplied volume for a market, split 50/50 between
// matched and pooled. The split is a placeholder until real matching data
// is available; any odd unit lands on the pooled side.
func (e *EfficiencyEngine) Record(ctx context.Context, id model.MarketID, units *big.Int) error {
	if units == nil || units.Sign() <= 0 {
		return nil
	}
	matched := new(big.Int).Rsh(units, 1)
	pooled := new(big.Int).Sub(units, matched)
	if err := e.repo.AddVolume(ctx, id.Hex(), matched, pooled); err != nil {
		return err
	}
	if pct, err := e.Efficiency(ctx, id); err == nil {
		metrics.MarketEfficiency.WithLabelValues(id.Hex()).Set(float64(pct))
	}
	return nil
}

// Efficiency returns floor(matched*100/(matched+pooled)), or 0 when no
// volume has been recorded for the market.
func (e *EfficiencyEngine) Efficiency(ctx context.Context, id model.MarketID) (int, error) {
	matched, pooled, err := e.repo.GetVolume(ctx, id.Hex())
	if err != nil {
		return 0, err
	}
	rec := &model.EfficiencyRecord{Matched: matched, Pooled: pooled}
	return rec.Efficiency(), nil
}

// VolumeStore is the in-memory VolumeRepo used when neither Redis nor
// Postgres is configured.
type VolumeStore struct {
	mu      sync.RWMutex
	records map[string]*model.EfficiencyRecord
}

func NewVolumeStore() *VolumeStore {
	return &VolumeStore{records: make(map[string]*model.EfficiencyRecord)}
}

func (s *VolumeStore) GetVolume(ctx context.Context, marketID string) (*big.Int, *big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[marketID]
	if !ok {
		return new(big.Int), new(big.Int), nil
	}
	return new(big.Int).Set(rec.Matched), new(big.Int).Set(rec.Pooled), nil
}

func (s *VolumeStore) AddVolume(ctx context.Context, marketID string, matched, pooled *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[marketID]
	if !ok {
		rec = model.NewEfficiencyRecord()
		s.records[marketID] = rec
	}
	rec.Matched.Add(rec.Matched, matched)
	rec.Pooled.Add(rec.Pooled, pooled)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
