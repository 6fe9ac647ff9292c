package classify

import (
	"fmt"

	"rallytiming/internal/model"
)

// Lookup resolves display metadata for a vehicle.
type Lookup interface {
	VehicleMetadata(vehicleID int64) (model.VehicleMetadata, bool)
}

// Directory is a Lookup over metadata fetched ahead of the computation.
type Directory map[int64]model.VehicleMetadata

func (d Directory) VehicleMetadata(vehicleID int64) (model.VehicleMetadata, bool) {
	m, ok := d[vehicleID]
	return m, ok
}

// Row is the externally consumable classification record of one vehicle.
type Row struct {
	VehicleID       int64       `json:"vehicleId"`
	VehicleName     string      `json:"vehicleName"`
	Plates          string      `json:"plates,omitempty"`
	SOAT            string      `json:"soat,omitempty"`
	DriverName      string      `json:"driverName"`
	CategoryID      int64       `json:"categoryId"`
	CategoryName    string      `json:"categoryName"`
	TeamName        *string     `json:"teamName"`
	UserPicture     *string     `json:"userPicture"`
	StageTimes      []StageTime `json:"stageTimes"`
	TotalTime       int64       `json:"totalTime"`
	CompletedStages int         `json:"completedStages"`
	Rank            int         `json:"rank"`
}

// Standing is the assembled classification of one category.
type Standing struct {
	CategoryID   int64  `json:"categoryId"`
	CategoryName string `json:"categoryName"`
	Rows         []Row  `json:"rows"`
}

// Assemble joins ranked vehicles with their display metadata, preserving rank
// order. Absent optional fields stay nil. A vehicle without metadata keeps its
// row with empty names and is reported.
func Assemble(cc CategoryClassification, lookup Lookup) (Standing, []Anomaly) {
	st := Standing{CategoryID: cc.CategoryID, Rows: make([]Row, 0, len(cc.Vehicles))}
	var missing []Anomaly
	for _, v := range cc.Vehicles {
		row := Row{
			VehicleID:       v.VehicleID,
			CategoryID:      cc.CategoryID,
			StageTimes:      v.StageTimes,
			TotalTime:       v.TotalTime,
			CompletedStages: v.CompletedStages,
			Rank:            v.Rank,
		}
		if row.StageTimes == nil {
			row.StageTimes = []StageTime{}
		}
		md, ok := lookup.VehicleMetadata(v.VehicleID)
		if !ok {
			missing = append(missing, Anomaly{
				Kind:      AnomalyMissingMetadata,
				VehicleID: v.VehicleID,
				Message:   fmt.Sprintf("no metadata for vehicle %d", v.VehicleID),
			})
		} else {
			row.VehicleName = md.Name
			row.Plates = md.Plates
			row.SOAT = md.SOAT
			row.DriverName = md.DriverName
			row.CategoryName = md.CategoryName
			row.TeamName = md.TeamName
			row.UserPicture = md.UserPicture
			if st.CategoryName == "" {
				st.CategoryName = md.CategoryName
			}
		}
		st.Rows = append(st.Rows, row)
	}
	return st, missing
}
