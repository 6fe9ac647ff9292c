package classify

import (
	"fmt"
	"sort"
)

// CategoryClassification is one category's vehicles in rank order.
type CategoryClassification struct {
	CategoryID int64
	Vehicles   []VehicleClassification
}

// Rank sorts vehicles by total time ascending with vehicle id as tie-break and
// assigns competition ranks: equal totals share a rank and the next distinct
// total takes its 1-based position (1, 1, 3). Untimed vehicles are placed after
// every timed one, or dropped with an anomaly when the policy excludes them.
// The input slice is not modified.
func Rank(categoryID int64, vehicles []VehicleClassification, p Policy) (CategoryClassification, []Anomaly) {
	out := CategoryClassification{CategoryID: categoryID, Vehicles: make([]VehicleClassification, 0, len(vehicles))}
	var excluded []Anomaly
	for _, v := range vehicles {
		if !v.Timed() && p.Untimed == UntimedExclude {
			excluded = append(excluded, Anomaly{
				Kind:      AnomalyUntimedExcluded,
				VehicleID: v.VehicleID,
				Message:   fmt.Sprintf("vehicle %d has no timed stage and was left out of category %d", v.VehicleID, categoryID),
			})
			continue
		}
		out.Vehicles = append(out.Vehicles, v)
	}

	vs := out.Vehicles
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Timed() != vs[j].Timed() {
			return vs[i].Timed()
		}
		if vs[i].TotalTime != vs[j].TotalTime {
			return vs[i].TotalTime < vs[j].TotalTime
		}
		return vs[i].VehicleID < vs[j].VehicleID
	})
	for i := range vs {
		if i > 0 && sameStanding(vs[i-1], vs[i]) {
			vs[i].Rank = vs[i-1].Rank
			continue
		}
		vs[i].Rank = i + 1
	}
	return out, excluded
}

func sameStanding(a, b VehicleClassification) bool {
	return a.Timed() == b.Timed() && a.TotalTime == b.TotalTime
}
