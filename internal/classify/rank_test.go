package classify

import (
	"encoding/json"
	"errors"
	"testing"
)

func timed(id, total int64) VehicleClassification {
	return VehicleClassification{VehicleID: id, CategoryID: i64(1), TotalTime: total, CompletedStages: 1}
}

func ranks(cc CategoryClassification) map[int64]int {
	out := map[int64]int{}
	for _, v := range cc.Vehicles {
		out[v.VehicleID] = v.Rank
	}
	return out
}

func TestRankCompetitionTies(t *testing.T) {
	// A=1, B=2, C=3
	cc, _ := Rank(1, []VehicleClassification{timed(3, 1600), timed(2, 1500), timed(1, 1500)}, DefaultPolicy())
	got := ranks(cc)
	if got[1] != 1 || got[2] != 1 || got[3] != 3 {
		t.Fatalf("want A=1 B=1 C=3, got %v", got)
	}
	if cc.Vehicles[0].VehicleID != 1 || cc.Vehicles[1].VehicleID != 2 {
		t.Fatalf("ties must be ordered by vehicle id, got %d,%d", cc.Vehicles[0].VehicleID, cc.Vehicles[1].VehicleID)
	}
}

func TestRankDeterministic(t *testing.T) {
	in1 := []VehicleClassification{timed(5, 100), timed(2, 100), timed(9, 50), timed(1, 100), timed(4, 70)}
	in2 := []VehicleClassification{timed(1, 100), timed(4, 70), timed(9, 50), timed(5, 100), timed(2, 100)}
	a, _ := Rank(1, in1, DefaultPolicy())
	b, _ := Rank(1, in2, DefaultPolicy())
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("rank order depends on input order:\n%s\n%s", ja, jb)
	}
	again, _ := Rank(1, in1, DefaultPolicy())
	jc, _ := json.Marshal(again)
	if string(ja) != string(jc) {
		t.Fatal("rank is not repeatable")
	}
	want := []int64{9, 4, 1, 2, 5}
	for i, v := range a.Vehicles {
		if v.VehicleID != want[i] {
			t.Fatalf("position %d: want %d got %d", i, want[i], v.VehicleID)
		}
	}
	if in1[0].VehicleID != 5 || in1[0].Rank != 0 {
		t.Fatal("input slice was modified")
	}
}

func TestRankEmptyAndSingle(t *testing.T) {
	cc, ex := Rank(1, nil, DefaultPolicy())
	if len(cc.Vehicles) != 0 || len(ex) != 0 {
		t.Fatalf("empty category must rank to empty, got %+v", cc)
	}
	cc, _ = Rank(1, []VehicleClassification{timed(4, -20)}, DefaultPolicy())
	if cc.Vehicles[0].Rank != 1 {
		t.Fatalf("single vehicle must rank 1, got %d", cc.Vehicles[0].Rank)
	}
}

func TestRankUntimedPolicy(t *testing.T) {
	untimedA := VehicleClassification{VehicleID: 2, CategoryID: i64(1)}
	untimedB := VehicleClassification{VehicleID: 1, CategoryID: i64(1)}
	in := []VehicleClassification{untimedA, timed(3, 900), untimedB, timed(4, 500)}

	cc, ex := Rank(1, in, DefaultPolicy())
	if len(ex) != 0 || len(cc.Vehicles) != 4 {
		t.Fatalf("last policy keeps everyone: %+v %+v", cc, ex)
	}
	order := []int64{4, 3, 1, 2}
	wantRank := []int{1, 2, 3, 3}
	for i, v := range cc.Vehicles {
		if v.VehicleID != order[i] || v.Rank != wantRank[i] {
			t.Fatalf("position %d: want vehicle %d rank %d, got %d rank %d", i, order[i], wantRank[i], v.VehicleID, v.Rank)
		}
	}

	p := DefaultPolicy()
	p.Untimed = UntimedExclude
	cc, ex = Rank(1, in, p)
	if len(cc.Vehicles) != 2 || len(ex) != 2 {
		t.Fatalf("exclude policy: want 2 ranked 2 excluded, got %d/%d", len(cc.Vehicles), len(ex))
	}
	if ex[0].Kind != AnomalyUntimedExcluded {
		t.Fatalf("unexpected anomaly %+v", ex[0])
	}
}

func TestRankTimedZeroBeforeUntimed(t *testing.T) {
	in := []VehicleClassification{{VehicleID: 1, CategoryID: i64(1)}, timed(2, 0)}
	cc, _ := Rank(1, in, DefaultPolicy())
	if cc.Vehicles[0].VehicleID != 2 || cc.Vehicles[0].Rank != 1 || cc.Vehicles[1].Rank != 2 {
		t.Fatalf("timed zero must beat untimed: %+v", cc.Vehicles)
	}
}

func TestGroupByCategory(t *testing.T) {
	vs := []VehicleClassification{
		{VehicleID: 1, CategoryID: i64(10)},
		{VehicleID: 2, CategoryID: i64(20)},
		{VehicleID: 3},
		{VehicleID: 4, CategoryID: i64(10)},
	}
	groups, orphans := Group(1, vs)
	if len(groups[10]) != 2 || len(groups[20]) != 1 || len(groups) != 2 {
		t.Fatalf("unexpected groups %+v", groups)
	}
	if len(orphans) != 1 || orphans[0].VehicleID != 3 || !errors.Is(orphans[0], ErrOrphanVehicle) {
		t.Fatalf("want orphan vehicle 3, got %+v", orphans)
	}
}
