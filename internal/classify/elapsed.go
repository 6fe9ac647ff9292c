package classify

import (
	"math"
	"sort"

	"rallytiming/internal/model"
)

// DeriveElapsedTimes computes elapsed seconds from consecutive result
// timestamps. Per vehicle, results are walked in stage order; a result gets
// next.Timestamp - Timestamp when its stage is not neutralized and both
// timestamps are present. The last result of a vehicle never gets a value.
// The returned map is keyed by result id.
func DeriveElapsedTimes(snap model.Snapshot) map[int64]int64 {
	stages := map[int64]model.Stage{}
	for _, s := range snap.Stages {
		if s.EventID == snap.Event.ID {
			stages[s.ID] = s
		}
	}
	byVehicle := map[int64][]model.StageResult{}
	for _, r := range snap.Results {
		if _, ok := stages[r.StageID]; ok {
			byVehicle[r.VehicleID] = append(byVehicle[r.VehicleID], r)
		}
	}

	out := map[int64]int64{}
	for _, rs := range byVehicle {
		sort.SliceStable(rs, func(i, j int) bool {
			oi, oj := stages[rs[i].StageID].OrderNumber, stages[rs[j].StageID].OrderNumber
			if oi != oj {
				return oi < oj
			}
			return rs[i].ID < rs[j].ID
		})
		for i := 0; i+1 < len(rs); i++ {
			cur, next := rs[i], rs[i+1]
			if stages[cur.StageID].Neutralized || cur.Timestamp == nil || next.Timestamp == nil {
				continue
			}
			d := next.Timestamp.Sub(*cur.Timestamp)
			out[cur.ID] = int64(math.Floor(d.Seconds()))
		}
	}
	return out
}
