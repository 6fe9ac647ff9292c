package classify

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateResult      = errors.New("duplicate stage result")
	ErrOrphanVehicle        = errors.New("vehicle has no category")
	ErrNegativeAdjustedTime = errors.New("negative adjusted time")
	ErrMissingMetadata      = errors.New("vehicle metadata not found")
)

type AnomalyKind string

const (
	AnomalyDuplicateResult      AnomalyKind = "duplicate_result"
	AnomalyOrphanVehicle        AnomalyKind = "orphan_vehicle"
	AnomalyNegativeAdjustedTime AnomalyKind = "negative_adjusted_time"
	AnomalyMissingMetadata      AnomalyKind = "missing_metadata"
	AnomalyUntimedExcluded      AnomalyKind = "untimed_excluded"
)

// Anomaly is a data-integrity finding attached to a classification. It is also
// an error so the pipeline stages can return it; errors.Is matches the sentinel
// for its kind.
type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	VehicleID  int64       `json:"vehicleId"`
	StageID    int64       `json:"stageId,omitempty"`
	StageOrder int         `json:"stageOrder,omitempty"`
	ResultIDs  []int64     `json:"resultIds,omitempty"`
	Message    string      `json:"message"`
}

func (a Anomaly) Error() string { return a.Message }

func (a Anomaly) Unwrap() error {
	switch a.Kind {
	case AnomalyDuplicateResult:
		return ErrDuplicateResult
	case AnomalyOrphanVehicle:
		return ErrOrphanVehicle
	case AnomalyNegativeAdjustedTime:
		return ErrNegativeAdjustedTime
	case AnomalyMissingMetadata:
		return ErrMissingMetadata
	}
	return nil
}

func duplicateAnomaly(vehicleID, stageID int64, stageOrder int, resultIDs []int64) Anomaly {
	return Anomaly{
		Kind:       AnomalyDuplicateResult,
		VehicleID:  vehicleID,
		StageID:    stageID,
		StageOrder: stageOrder,
		ResultIDs:  resultIDs,
		Message:    fmt.Sprintf("vehicle %d has %d results for stage %d (order %d): %v", vehicleID, len(resultIDs), stageID, stageOrder, resultIDs),
	}
}

// anomaliesOf flattens an error returned by Aggregate (possibly joined) into anomalies.
func anomaliesOf(err error) []Anomaly {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []Anomaly
		for _, e := range joined.Unwrap() {
			out = append(out, anomaliesOf(e)...)
		}
		return out
	}
	var a Anomaly
	if errors.As(err, &a) {
		return []Anomaly{a}
	}
	return []Anomaly{{Message: err.Error()}}
}
