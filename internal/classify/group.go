package classify

import "fmt"

// Group partitions vehicles by category id. A vehicle without a category is
// reported as an orphan anomaly and left out of every group.
func Group(eventID int64, vehicles []VehicleClassification) (map[int64][]VehicleClassification, []Anomaly) {
	groups := map[int64][]VehicleClassification{}
	var orphans []Anomaly
	for _, v := range vehicles {
		if v.CategoryID == nil {
			orphans = append(orphans, Anomaly{
				Kind:      AnomalyOrphanVehicle,
				VehicleID: v.VehicleID,
				Message:   fmt.Sprintf("event %d: vehicle %d has no category and was left out of the classification", eventID, v.VehicleID),
			})
			continue
		}
		groups[*v.CategoryID] = append(groups[*v.CategoryID], v)
	}
	return groups, orphans
}
