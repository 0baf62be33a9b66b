package model

import (
	"math/big"
	"time"
)

// EfficiencyRecord is the per-market volume accumulator. Matched and Pooled
// only ever grow; the record is created lazily on the first recorded supply
// and never deleted.
type EfficiencyRecord struct {
	Matched   *big.Int  `json:"matched"`
	Pooled    *big.Int  `json:"pooled"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewEfficiencyRecord() *EfficiencyRecord {
	return &EfficiencyRecord{
		Matched: new(big.Int),
		Pooled:  new(big.Int),
	}
}

// Efficiency returns floor(matched*100/(matched+pooled)) as an integer in
// [0, 100]. Zero when no volume has been recorded.
func (r *EfficiencyRecord) Efficiency() int {
	if r == nil || r.Matched == nil || r.Pooled == nil {
		return 0
	}
	total := new(big.Int).Add(r.Matched, r.Pooled)
	if total.Sign() == 0 {
		return 0
	}
	pct := new(big.Int).Mul(r.Matched, big.NewInt(100))
	pct.Quo(pct, total)
	return int(pct.Int64())
}
