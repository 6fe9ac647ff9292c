// Package classify turns per-stage timing records into ranked, category-scoped
// classifications. Everything here is a pure function of its inputs: callers
// fetch the snapshot and vehicle metadata first and may run any number of
// classifications in parallel.
package classify

import "rallytiming/internal/model"

type CellStatus string

const (
	CellAdjusted CellStatus = "adjusted"
	CellMissing  CellStatus = "missing"
)

// Timing is the part of a stage result the adjustment reads.
type Timing struct {
	Elapsed         *int64
	PenaltyWaypoint *int64
	PenaltySpeed    *int64
	DiscountClaim   *int64
}

func TimingOf(r model.StageResult) Timing {
	return Timing{
		Elapsed:         r.ElapsedTimeSeconds,
		PenaltyWaypoint: r.PenaltyWaypoint,
		PenaltySpeed:    r.PenaltySpeed,
		DiscountClaim:   r.DiscountClaim,
	}
}

// AdjustedTime is either Missing or Adjusted with Seconds set.
type AdjustedTime struct {
	Status  CellStatus
	Seconds int64
}

func (a AdjustedTime) Missing() bool { return a.Status == CellMissing }

func (a AdjustedTime) Negative() bool { return a.Status == CellAdjusted && a.Seconds < 0 }

// Adjust computes elapsed + waypoint + speed - discount. Nil components count
// as zero and negative components are floored at zero. A nil elapsed time is
// Missing, never zero.
func Adjust(t Timing) AdjustedTime {
	if t.Elapsed == nil {
		return AdjustedTime{Status: CellMissing}
	}
	secs := *t.Elapsed + nonNegative(t.PenaltyWaypoint) + nonNegative(t.PenaltySpeed) - nonNegative(t.DiscountClaim)
	return AdjustedTime{Status: CellAdjusted, Seconds: secs}
}

func nonNegative(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
