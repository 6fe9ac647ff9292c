package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"rallytiming/internal/model"
)

func seededMemory(t *testing.T) *Memory {
	t.Helper()
	seed, err := LoadSeedFile(filepath.Join("..", "..", "db", "seed", "demo.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	m := NewMemory()
	if err := m.Seed(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return m
}

func TestMemorySnapshot(t *testing.T) {
	m := seededMemory(t)
	snap, err := m.EventSnapshot(context.Background(), 1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Event.Name != "Baja Andina 2025" || len(snap.Stages) != 3 || len(snap.Entrants) != 4 || len(snap.Results) != 9 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	for i, s := range snap.Stages {
		if s.OrderNumber != i+1 {
			t.Fatalf("stages not ordered: %+v", snap.Stages)
		}
	}
	if !snap.Stages[1].Neutralized {
		t.Fatal("liaison must be neutralized")
	}
	if len(snap.Vehicles) != 4 || snap.Vehicles[4].CategoryName != "Motorcycles" || snap.Vehicles[1].DriverName != "Ana Ruiz" {
		t.Fatalf("snapshot must carry vehicle metadata: %+v", snap.Vehicles)
	}
	if _, err := m.EventSnapshot(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemorySeedIsIdempotent(t *testing.T) {
	m := seededMemory(t)
	seed, err := LoadSeedFile(filepath.Join("..", "..", "db", "seed", "demo.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if _, err := m.ApplyPenalty(context.Background(), 1, model.Penalty{PenaltySpeed: model.Int64(45)}); err != nil {
		t.Fatalf("penalty: %v", err)
	}
	if err := m.Seed(context.Background(), seed); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	snap, err := m.EventSnapshot(context.Background(), 1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Results) != len(seed.Results) {
		t.Fatalf("reseed duplicated results: %d stored, %d seeded", len(snap.Results), len(seed.Results))
	}
	r, _ := m.GetResult(context.Background(), 1)
	if r.PenaltySpeed != nil || r.PenaltyWaypoint == nil || *r.PenaltyWaypoint != 60 {
		t.Fatalf("reseed must restore the fixture row: %+v", r)
	}
	created, err := m.CreateResult(context.Background(), model.StageResultInput{StageID: 102, VehicleID: 3})
	if err != nil || created.ID != 10 {
		t.Fatalf("new ids must follow the seeded ones: %+v %v", created, err)
	}
}

func TestMemoryResultsSortedByStageThenTimestamp(t *testing.T) {
	m := seededMemory(t)
	rs, err := m.ListResultsByEvent(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	order := map[int64]int{101: 1, 102: 2, 103: 3}
	for i := 1; i < len(rs); i++ {
		a, b := rs[i-1], rs[i]
		if order[a.StageID] > order[b.StageID] {
			t.Fatalf("stage order broken at %d", i)
		}
		if a.StageID == b.StageID && a.Timestamp.After(*b.Timestamp) {
			t.Fatalf("timestamp order broken at %d", i)
		}
	}
}

func TestMemoryVehicleMetadata(t *testing.T) {
	m := seededMemory(t)
	md, err := m.VehicleMetadata(context.Background(), []int64{1, 2, 99})
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if len(md) != 2 {
		t.Fatalf("unknown vehicles must be absent: %+v", md)
	}
	v1 := md[1]
	if v1.DriverName != "Ana Ruiz" || v1.CategoryName != "Cars" || v1.TeamName == nil || *v1.TeamName != "Andes Racing" || v1.UserPicture != nil {
		t.Fatalf("vehicle 1: %+v", v1)
	}
	if md[2].UserPicture == nil || md[2].TeamName != nil {
		t.Fatalf("vehicle 2: %+v", md[2])
	}
}

func TestMemoryResultLifecycle(t *testing.T) {
	ctx := context.Background()
	m := seededMemory(t)
	r, err := m.CreateResult(ctx, model.StageResultInput{StageID: 102, VehicleID: 3, ElapsedTimeSeconds: model.Int64(700)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == 0 {
		t.Fatal("id not assigned")
	}
	if _, err := m.CreateResult(ctx, model.StageResultInput{StageID: 999, VehicleID: 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown stage: %v", err)
	}

	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	r, err = m.UpdateResult(ctx, r.ID, model.StageResultPatch{Timestamp: &ts})
	if err != nil || r.Timestamp == nil || !r.Timestamp.Equal(ts) || *r.ElapsedTimeSeconds != 700 {
		t.Fatalf("update: %+v %v", r, err)
	}

	r, err = m.ApplyPenalty(ctx, r.ID, model.Penalty{PenaltySpeed: model.Int64(90)})
	if err != nil || *r.PenaltySpeed != 90 || r.PenaltyWaypoint != nil {
		t.Fatalf("penalty: %+v %v", r, err)
	}

	// callers must not be able to mutate stored values
	*r.PenaltySpeed = 1
	got, _ := m.GetResult(ctx, r.ID)
	if *got.PenaltySpeed != 90 {
		t.Fatal("stored result shares memory with caller")
	}

	if err := m.SetElapsedTimes(ctx, map[int64]int64{r.ID: 42}); err != nil {
		t.Fatalf("set elapsed: %v", err)
	}
	got, _ = m.GetResult(ctx, r.ID)
	if *got.ElapsedTimeSeconds != 42 {
		t.Fatalf("elapsed not stored: %+v", got)
	}
	if err := m.SetElapsedTimes(ctx, map[int64]int64{r.ID: 1, 999: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id must fail the whole batch: %v", err)
	}
	got, _ = m.GetResult(ctx, r.ID)
	if *got.ElapsedTimeSeconds != 42 {
		t.Fatal("failed batch must not apply partially")
	}

	if err := m.DeleteResult(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetResult(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted result still readable: %v", err)
	}
}

func TestMemoryComposition(t *testing.T) {
	ctx := context.Background()
	m := seededMemory(t)
	if err := m.UnregisterVehicle(ctx, 1, 4); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := m.UnregisterVehicle(ctx, 1, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second unregister: %v", err)
	}
	if err := m.RegisterVehicle(ctx, 1, 4); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RegisterVehicle(ctx, 1, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("register unknown vehicle: %v", err)
	}

	events, err := m.AssignVehicleCategory(ctx, 4, 1)
	if err != nil || len(events) != 1 || events[0] != 1 {
		t.Fatalf("assign: %v %v", events, err)
	}
	md, _ := m.VehicleMetadata(ctx, []int64{4})
	if md[4].CategoryName != "Cars" {
		t.Fatalf("category not reassigned: %+v", md[4])
	}
	if _, err := m.AssignVehicleCategory(ctx, 4, 77); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown category: %v", err)
	}
}

func TestMemoryStageLookups(t *testing.T) {
	ctx := context.Background()
	m := seededMemory(t)
	s, err := m.StageByOrder(ctx, 1, 3)
	if err != nil || s.ID != 103 {
		t.Fatalf("stage by order: %+v %v", s, err)
	}
	if _, err := m.StageByOrder(ctx, 1, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown order: %v", err)
	}
	if eid, err := m.EventOfStage(ctx, 102); err != nil || eid != 1 {
		t.Fatalf("event of stage: %d %v", eid, err)
	}
}
