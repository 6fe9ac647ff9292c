package standings

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rallytiming/internal/classify"
	"rallytiming/internal/integrations"
	"rallytiming/internal/metrics"
	"rallytiming/internal/model"
	"rallytiming/internal/store"
)

func (s *Service) ListResults(ctx context.Context, eventID int64) ([]model.StageResult, error) {
	return s.store.ListResultsByEvent(ctx, eventID)
}

// CreateResult stores a result. The stage may be given by id, or by event and
// order number.
func (s *Service) CreateResult(ctx context.Context, in model.StageResultInput) (model.StageResult, error) {
	if in.VehicleID <= 0 {
		return model.StageResult{}, fmt.Errorf("vehicleId is required: %w", ErrInvalid)
	}
	if in.StageID == 0 {
		if in.EventID <= 0 || in.StageOrder <= 0 {
			return model.StageResult{}, fmt.Errorf("stageId or eventId+stageOrder is required: %w", ErrInvalid)
		}
		st, err := s.store.StageByOrder(ctx, in.EventID, in.StageOrder)
		if err != nil {
			return model.StageResult{}, err
		}
		in.StageID = st.ID
	}
	r, err := s.store.CreateResult(ctx, in)
	if err != nil {
		return r, err
	}
	metrics.ResultWrites.WithLabelValues("create").Inc()
	s.invalidateStages(ctx, r.StageID)
	return r, nil
}

func (s *Service) UpdateResult(ctx context.Context, id int64, patch model.StageResultPatch) (model.StageResult, error) {
	old, err := s.store.GetResult(ctx, id)
	if err != nil {
		return old, err
	}
	r, err := s.store.UpdateResult(ctx, id, patch)
	if err != nil {
		return r, err
	}
	metrics.ResultWrites.WithLabelValues("update").Inc()
	s.invalidateStages(ctx, old.StageID, r.StageID)
	return r, nil
}

func (s *Service) DeleteResult(ctx context.Context, id int64) error {
	old, err := s.store.GetResult(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteResult(ctx, id); err != nil {
		return err
	}
	metrics.ResultWrites.WithLabelValues("delete").Inc()
	s.invalidateStages(ctx, old.StageID)
	return nil
}

// ApplyPenalty overwrites all three adjustment components of a result.
func (s *Service) ApplyPenalty(ctx context.Context, id int64, p model.Penalty) (model.StageResult, error) {
	r, err := s.store.ApplyPenalty(ctx, id, p)
	if err != nil {
		return r, err
	}
	metrics.ResultWrites.WithLabelValues("penalty").Inc()
	s.invalidateStages(ctx, r.StageID)
	return r, nil
}

// DeriveElapsedTimes recomputes elapsed seconds from consecutive timestamps
// and persists them. It returns the updated values by result id.
func (s *Service) DeriveElapsedTimes(ctx context.Context, eventID int64) (map[int64]int64, error) {
	snap, err := s.store.EventSnapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	elapsed := classify.DeriveElapsedTimes(snap)
	if len(elapsed) == 0 {
		return elapsed, nil
	}
	if err := s.store.SetElapsedTimes(ctx, elapsed); err != nil {
		return nil, err
	}
	metrics.ResultWrites.WithLabelValues("elapsed").Add(float64(len(elapsed)))
	s.invalidate(ctx, eventID)
	return elapsed, nil
}

func (s *Service) RegisterVehicle(ctx context.Context, eventID, vehicleID int64) error {
	if err := s.store.RegisterVehicle(ctx, eventID, vehicleID); err != nil {
		return err
	}
	s.invalidate(ctx, eventID)
	return nil
}

func (s *Service) UnregisterVehicle(ctx context.Context, eventID, vehicleID int64) error {
	if err := s.store.UnregisterVehicle(ctx, eventID, vehicleID); err != nil {
		return err
	}
	s.invalidate(ctx, eventID)
	return nil
}

// AssignVehicleCategory moves a vehicle to another category and invalidates
// every event it is entered in or has results for.
func (s *Service) AssignVehicleCategory(ctx context.Context, vehicleID, categoryID int64) ([]int64, error) {
	events, err := s.store.AssignVehicleCategory(ctx, vehicleID, categoryID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, events...)
	return events, nil
}

// ImportReport summarises a timing import.
type ImportReport struct {
	Imported int                   `json:"imported"`
	Rejected []integrations.Reject `json:"rejected"`
}

// ImportResults stores every row of a parsed timing batch for one event.
// Rows naming an unknown stage order or vehicle are rejected; any other store
// error aborts the import. The event is invalidated once at the end.
func (s *Service) ImportResults(ctx context.Context, eventID int64, batch integrations.Batch) (ImportReport, error) {
	rep := ImportReport{Rejected: append([]integrations.Reject{}, batch.Rejects...)}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return rep, err
	}
	stages := map[int]int64{}
	defer func() {
		if rep.Imported > 0 {
			metrics.ResultWrites.WithLabelValues("import").Add(float64(rep.Imported))
			s.invalidate(ctx, eventID)
		}
	}()
	for _, row := range batch.Rows {
		stageID, ok := stages[row.StageOrder]
		if !ok {
			st, err := s.store.StageByOrder(ctx, eventID, row.StageOrder)
			if errors.Is(err, store.ErrNotFound) {
				rep.Rejected = append(rep.Rejected, integrations.Reject{Line: row.Line, Reason: fmt.Sprintf("unknown stage order %d", row.StageOrder)})
				continue
			}
			if err != nil {
				return rep, err
			}
			stageID = st.ID
			stages[row.StageOrder] = stageID
		}
		_, err := s.store.CreateResult(ctx, model.StageResultInput{
			StageID:            stageID,
			VehicleID:          row.VehicleID,
			Timestamp:          row.Timestamp,
			ElapsedTimeSeconds: row.ElapsedTimeSeconds,
			PenaltyWaypoint:    row.PenaltyWaypoint,
			PenaltySpeed:       row.PenaltySpeed,
			DiscountClaim:      row.DiscountClaim,
		})
		if errors.Is(err, store.ErrNotFound) {
			rep.Rejected = append(rep.Rejected, integrations.Reject{Line: row.Line, Reason: fmt.Sprintf("unknown vehicle %d", row.VehicleID)})
			continue
		}
		if err != nil {
			return rep, err
		}
		rep.Imported++
	}
	return rep, nil
}

func (s *Service) invalidateStages(ctx context.Context, stageIDs ...int64) {
	var events []int64
	for _, id := range stageIDs {
		eid, err := s.store.EventOfStage(ctx, id)
		if err != nil {
			log.Printf("resolve event of stage %d: %v", id, err)
			metrics.CacheInvalidationErrors.Inc()
			continue
		}
		events = append(events, eid)
	}
	s.invalidate(ctx, events...)
}
