package classify

import (
	"errors"
	"fmt"
	"sort"

	"rallytiming/internal/model"
)

const (
	FlagNegativeAdjustedTime = "negative_adjusted_time"
	FlagClamped              = "clamped"
)

// StageTime is one vehicle's cell for one stage.
type StageTime struct {
	StageID                int64      `json:"stageId"`
	StageOrder             int        `json:"stageOrder"`
	StageResultID          int64      `json:"stageResultId"`
	Neutralized            bool       `json:"neutralized,omitempty"`
	ElapsedTimeSeconds     *int64     `json:"elapsedTimeSeconds"`
	PenaltyWaypointSeconds *int64     `json:"penaltyWaypointSeconds"`
	PenaltySpeedSeconds    *int64     `json:"penaltySpeedSeconds"`
	DiscountClaimSeconds   *int64     `json:"discountClaimSeconds"`
	Status                 CellStatus `json:"status"`
	AdjustedTimeSeconds    *int64     `json:"adjustedTimeSeconds"`
	Counted                bool       `json:"counted"`
	Flags                  []string   `json:"flags,omitempty"`
}

// VehicleClassification is one vehicle's folded results within an event.
type VehicleClassification struct {
	VehicleID       int64
	CategoryID      *int64
	StageTimes      []StageTime
	TotalTime       int64
	CompletedStages int
	Rank            int
	Warnings        []Anomaly
}

// Timed reports whether at least one stage counted toward the total.
func (v VehicleClassification) Timed() bool { return v.CompletedStages > 0 }

// Aggregate folds the results of vehicleID on the stages of eventID. Results on
// stages outside the event are ignored. Stage times come back in ascending stage
// order; missing cells are kept but never counted. More than one result for a
// stage is a conflict: the returned error carries one duplicate anomaly per
// conflicting stage and the classification must not be ranked.
func Aggregate(eventID, vehicleID int64, categoryID *int64, stages []model.Stage, results []model.StageResult, p Policy) (VehicleClassification, error) {
	vc := VehicleClassification{VehicleID: vehicleID, CategoryID: categoryID, StageTimes: []StageTime{}}

	stageByID := make(map[int64]model.Stage, len(stages))
	for _, s := range stages {
		if s.EventID == eventID {
			stageByID[s.ID] = s
		}
	}
	byStage := map[int64][]model.StageResult{}
	for _, r := range results {
		if r.VehicleID != vehicleID {
			continue
		}
		if _, ok := stageByID[r.StageID]; !ok {
			continue
		}
		byStage[r.StageID] = append(byStage[r.StageID], r)
	}

	ordered := make([]model.Stage, 0, len(byStage))
	for id := range byStage {
		ordered = append(ordered, stageByID[id])
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].OrderNumber != ordered[j].OrderNumber {
			return ordered[i].OrderNumber < ordered[j].OrderNumber
		}
		return ordered[i].ID < ordered[j].ID
	})

	var conflicts []error
	for _, st := range ordered {
		rs := byStage[st.ID]
		if len(rs) > 1 {
			ids := make([]int64, len(rs))
			for i, r := range rs {
				ids[i] = r.ID
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			conflicts = append(conflicts, duplicateAnomaly(vehicleID, st.ID, st.OrderNumber, ids))
		}
	}
	if len(conflicts) > 0 {
		return vc, errors.Join(conflicts...)
	}

	for _, st := range ordered {
		r := byStage[st.ID][0]
		cell := StageTime{
			StageID:                st.ID,
			StageOrder:             st.OrderNumber,
			StageResultID:          r.ID,
			Neutralized:            st.Neutralized,
			ElapsedTimeSeconds:     r.ElapsedTimeSeconds,
			PenaltyWaypointSeconds: r.PenaltyWaypoint,
			PenaltySpeedSeconds:    r.PenaltySpeed,
			DiscountClaimSeconds:   r.DiscountClaim,
		}
		adj := Adjust(TimingOf(r))
		cell.Status = adj.Status
		if !adj.Missing() {
			secs := adj.Seconds
			if adj.Negative() {
				cell.Flags = append(cell.Flags, FlagNegativeAdjustedTime)
				vc.Warnings = append(vc.Warnings, Anomaly{
					Kind:       AnomalyNegativeAdjustedTime,
					VehicleID:  vehicleID,
					StageID:    st.ID,
					StageOrder: st.OrderNumber,
					ResultIDs:  []int64{r.ID},
					Message:    fmt.Sprintf("vehicle %d stage %d: adjusted time %ds is negative", vehicleID, st.OrderNumber, secs),
				})
				if p.NegativeTime == NegativeClamp {
					secs = 0
					cell.Flags = append(cell.Flags, FlagClamped)
				}
			}
			cell.AdjustedTimeSeconds = &secs
			cell.Counted = !(st.Neutralized && p.Neutralized == NeutralizedExclude)
			if cell.Counted {
				vc.TotalTime += secs
				vc.CompletedStages++
			}
		}
		vc.StageTimes = append(vc.StageTimes, cell)
	}
	return vc, nil
}
