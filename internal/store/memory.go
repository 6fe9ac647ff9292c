package store

import (
	"context"
	"sort"
	"sync"

	"rallytiming/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// Every read takes the lock once, so snapshots are consistent.
type Memory struct {
	mu         sync.Mutex
	events     map[int64]model.Event
	stages     map[int64]model.Stage
	categories map[int64]model.Category
	users      map[int64]model.User
	vehicles   map[int64]model.Vehicle
	entrants   map[int64]map[int64]struct{} // event -> vehicles
	results    map[int64]model.StageResult
	nextResult int64
}

func NewMemory() *Memory {
	return &Memory{
		events:     map[int64]model.Event{},
		stages:     map[int64]model.Stage{},
		categories: map[int64]model.Category{},
		users:      map[int64]model.User{},
		vehicles:   map[int64]model.Vehicle{},
		entrants:   map[int64]map[int64]struct{}{},
		results:    map[int64]model.StageResult{},
	}
}

func (m *Memory) Seed(ctx context.Context, seed model.Seed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range seed.Events {
		m.events[e.ID] = e
	}
	for _, c := range seed.Categories {
		m.categories[c.ID] = c
	}
	for _, u := range seed.Users {
		m.users[u.ID] = u
	}
	for _, v := range seed.Vehicles {
		m.vehicles[v.ID] = v
	}
	for _, s := range seed.Stages {
		if _, ok := m.events[s.EventID]; !ok {
			return notFound("event", s.EventID)
		}
		m.stages[s.ID] = s
	}
	for _, en := range seed.Entrants {
		if err := m.registerLocked(en.EventID, en.VehicleID); err != nil {
			return err
		}
	}
	for _, r := range seed.Results {
		if _, err := m.insertLocked(r.ID, model.StageResultInput{
			StageID:            r.StageID,
			VehicleID:          r.VehicleID,
			Timestamp:          r.Timestamp,
			ElapsedTimeSeconds: r.ElapsedTimeSeconds,
			PenaltyWaypoint:    r.PenaltyWaypoint,
			PenaltySpeed:       r.PenaltySpeed,
			DiscountClaim:      r.DiscountClaim,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, eventID int64) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return model.Event{}, notFound("event", eventID)
	}
	return e, nil
}

func (m *Memory) EventSnapshot(ctx context.Context, eventID int64) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return model.Snapshot{}, notFound("event", eventID)
	}
	snap := model.Snapshot{Event: e, Stages: []model.Stage{}, Entrants: []int64{}, Results: []model.StageResult{}}
	for _, s := range m.stages {
		if s.EventID == eventID {
			snap.Stages = append(snap.Stages, s)
		}
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].OrderNumber < snap.Stages[j].OrderNumber })
	for vid := range m.entrants[eventID] {
		snap.Entrants = append(snap.Entrants, vid)
	}
	sort.Slice(snap.Entrants, func(i, j int) bool { return snap.Entrants[i] < snap.Entrants[j] })
	snap.Results = m.resultsLocked(eventID)
	snap.Vehicles = m.metadataLocked(snap.VehicleIDs())
	return snap, nil
}

func (m *Memory) VehicleMetadata(ctx context.Context, vehicleIDs []int64) (map[int64]model.VehicleMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadataLocked(vehicleIDs), nil
}

func (m *Memory) metadataLocked(vehicleIDs []int64) map[int64]model.VehicleMetadata {
	out := make(map[int64]model.VehicleMetadata, len(vehicleIDs))
	for _, id := range vehicleIDs {
		v, ok := m.vehicles[id]
		if !ok {
			continue
		}
		var cat *model.Category
		if v.CategoryID != nil {
			if c, ok := m.categories[*v.CategoryID]; ok {
				cat = &c
			}
		}
		var user *model.User
		if v.UserID != nil {
			if u, ok := m.users[*v.UserID]; ok {
				user = &u
			}
		}
		out[id] = vehicleMetadata(v, cat, user)
	}
	return out
}

func (m *Memory) ListResultsByEvent(ctx context.Context, eventID int64) ([]model.StageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return nil, notFound("event", eventID)
	}
	return m.resultsLocked(eventID), nil
}

// resultsLocked returns the event's results sorted by stage order, then timestamp.
func (m *Memory) resultsLocked(eventID int64) []model.StageResult {
	out := []model.StageResult{}
	for _, r := range m.results {
		if m.stages[r.StageID].EventID == eventID {
			out = append(out, cloneResult(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := m.stages[out[i].StageID].OrderNumber, m.stages[out[j].StageID].OrderNumber
		if oi != oj {
			return oi < oj
		}
		ti, tj := out[i].Timestamp, out[j].Timestamp
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		if (ti == nil) != (tj == nil) {
			return tj == nil
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) GetResult(ctx context.Context, id int64) (model.StageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return model.StageResult{}, notFound("stage result", id)
	}
	return cloneResult(r), nil
}

func (m *Memory) CreateResult(ctx context.Context, in model.StageResultInput) (model.StageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(in)
}

func (m *Memory) createLocked(in model.StageResultInput) (model.StageResult, error) {
	return m.insertLocked(0, in)
}

// insertLocked stores in under id, replacing any existing row; id 0 takes the
// next free id.
func (m *Memory) insertLocked(id int64, in model.StageResultInput) (model.StageResult, error) {
	if _, ok := m.stages[in.StageID]; !ok {
		return model.StageResult{}, notFound("stage", in.StageID)
	}
	if _, ok := m.vehicles[in.VehicleID]; !ok {
		return model.StageResult{}, notFound("vehicle", in.VehicleID)
	}
	if id == 0 {
		m.nextResult++
		id = m.nextResult
	} else if id > m.nextResult {
		m.nextResult = id
	}
	r := cloneResult(model.StageResult{
		ID:                 id,
		StageID:            in.StageID,
		VehicleID:          in.VehicleID,
		Timestamp:          in.Timestamp,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		ElapsedTimeSeconds: in.ElapsedTimeSeconds,
		PenaltyWaypoint:    in.PenaltyWaypoint,
		PenaltySpeed:       in.PenaltySpeed,
		DiscountClaim:      in.DiscountClaim,
	})
	m.results[r.ID] = r
	return cloneResult(r), nil
}

func (m *Memory) UpdateResult(ctx context.Context, id int64, patch model.StageResultPatch) (model.StageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return model.StageResult{}, notFound("stage result", id)
	}
	if patch.StageID != nil {
		if _, ok := m.stages[*patch.StageID]; !ok {
			return model.StageResult{}, notFound("stage", *patch.StageID)
		}
		r.StageID = *patch.StageID
	}
	if patch.VehicleID != nil {
		if _, ok := m.vehicles[*patch.VehicleID]; !ok {
			return model.StageResult{}, notFound("vehicle", *patch.VehicleID)
		}
		r.VehicleID = *patch.VehicleID
	}
	if patch.Timestamp != nil {
		r.Timestamp = patch.Timestamp
	}
	if patch.Latitude != nil {
		r.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		r.Longitude = *patch.Longitude
	}
	if patch.ElapsedTimeSeconds != nil {
		r.ElapsedTimeSeconds = patch.ElapsedTimeSeconds
	}
	r = cloneResult(r)
	m.results[id] = r
	return cloneResult(r), nil
}

func (m *Memory) DeleteResult(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[id]; !ok {
		return notFound("stage result", id)
	}
	delete(m.results, id)
	return nil
}

func (m *Memory) ApplyPenalty(ctx context.Context, id int64, p model.Penalty) (model.StageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return model.StageResult{}, notFound("stage result", id)
	}
	r.PenaltyWaypoint = p.PenaltyWaypoint
	r.PenaltySpeed = p.PenaltySpeed
	r.DiscountClaim = p.DiscountClaim
	r = cloneResult(r)
	m.results[id] = r
	return cloneResult(r), nil
}

func (m *Memory) SetElapsedTimes(ctx context.Context, elapsed map[int64]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range elapsed {
		if _, ok := m.results[id]; !ok {
			return notFound("stage result", id)
		}
	}
	for id, secs := range elapsed {
		r := m.results[id]
		r.ElapsedTimeSeconds = model.Int64(secs)
		m.results[id] = r
	}
	return nil
}

func (m *Memory) StageByOrder(ctx context.Context, eventID int64, order int) (model.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Stage
	for _, s := range m.stages {
		if s.EventID == eventID && s.OrderNumber == order && (found == nil || s.ID < found.ID) {
			s := s
			found = &s
		}
	}
	if found == nil {
		return model.Stage{}, notFound("stage order", int64(order))
	}
	return *found, nil
}

func (m *Memory) EventOfStage(ctx context.Context, stageID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stages[stageID]
	if !ok {
		return 0, notFound("stage", stageID)
	}
	return s.EventID, nil
}

func (m *Memory) RegisterVehicle(ctx context.Context, eventID, vehicleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerLocked(eventID, vehicleID)
}

func (m *Memory) registerLocked(eventID, vehicleID int64) error {
	if _, ok := m.events[eventID]; !ok {
		return notFound("event", eventID)
	}
	if _, ok := m.vehicles[vehicleID]; !ok {
		return notFound("vehicle", vehicleID)
	}
	if m.entrants[eventID] == nil {
		m.entrants[eventID] = map[int64]struct{}{}
	}
	m.entrants[eventID][vehicleID] = struct{}{}
	return nil
}

func (m *Memory) UnregisterVehicle(ctx context.Context, eventID, vehicleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entrants[eventID][vehicleID]; !ok {
		return notFound("entrant", vehicleID)
	}
	delete(m.entrants[eventID], vehicleID)
	return nil
}

func (m *Memory) AssignVehicleCategory(ctx context.Context, vehicleID, categoryID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return nil, notFound("vehicle", vehicleID)
	}
	if _, ok := m.categories[categoryID]; !ok {
		return nil, notFound("category", categoryID)
	}
	v.CategoryID = model.Int64(categoryID)
	m.vehicles[vehicleID] = v

	set := map[int64]struct{}{}
	for eid, vs := range m.entrants {
		if _, ok := vs[vehicleID]; ok {
			set[eid] = struct{}{}
		}
	}
	for _, r := range m.results {
		if r.VehicleID == vehicleID {
			set[m.stages[r.StageID].EventID] = struct{}{}
		}
	}
	out := make([]int64, 0, len(set))
	for eid := range set {
		out = append(out, eid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// cloneResult copies the pointer fields so callers never share them with the store.
func cloneResult(r model.StageResult) model.StageResult {
	cp := func(v *int64) *int64 {
		if v == nil {
			return nil
		}
		return model.Int64(*v)
	}
	if r.Timestamp != nil {
		ts := *r.Timestamp
		r.Timestamp = &ts
	}
	r.ElapsedTimeSeconds = cp(r.ElapsedTimeSeconds)
	r.PenaltyWaypoint = cp(r.PenaltyWaypoint)
	r.PenaltySpeed = cp(r.PenaltySpeed)
	r.DiscountClaim = cp(r.DiscountClaim)
	return r
}
