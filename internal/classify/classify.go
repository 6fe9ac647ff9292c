package classify

import (
	"sort"
	"time"

	"rallytiming/internal/model"
)

// Classification is the full result for one event, or one stage of it.
type Classification struct {
	ID         string     `json:"id,omitempty"`
	EventID    int64      `json:"eventId"`
	EventName  string     `json:"eventName"`
	StageOrder *int       `json:"stageOrder,omitempty"`
	Policy     Policy     `json:"policy"`
	Categories []Standing `json:"categories"`
	Anomalies  []Anomaly  `json:"anomalies"`
	ComputedAt time.Time  `json:"computedAt"`
}

// Classify runs adjust → aggregate → group → rank → assemble over one event
// snapshot. Vehicles with results and registered entrants are both considered;
// an entrant without results is untimed. Data-integrity problems are collected
// in Anomalies and never abort the computation.
func Classify(snap model.Snapshot, lookup Lookup, p Policy) Classification {
	eventID := snap.Event.ID
	out := Classification{EventID: eventID, EventName: snap.Event.Name, Policy: p, Categories: []Standing{}, Anomalies: []Anomaly{}}

	inEvent := map[int64]bool{}
	for _, s := range snap.Stages {
		if s.EventID == eventID {
			inEvent[s.ID] = true
		}
	}
	seen := map[int64]bool{}
	var vehicleIDs []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			vehicleIDs = append(vehicleIDs, id)
		}
	}
	for _, r := range snap.Results {
		if inEvent[r.StageID] {
			add(r.VehicleID)
		}
	}
	for _, id := range snap.Entrants {
		add(id)
	}
	sort.Slice(vehicleIDs, func(i, j int) bool { return vehicleIDs[i] < vehicleIDs[j] })

	vcs := make([]VehicleClassification, 0, len(vehicleIDs))
	for _, id := range vehicleIDs {
		var categoryID *int64
		if md, ok := lookup.VehicleMetadata(id); ok {
			categoryID = md.CategoryID
		}
		vc, err := Aggregate(eventID, id, categoryID, snap.Stages, snap.Results, p)
		if err != nil {
			out.Anomalies = append(out.Anomalies, anomaliesOf(err)...)
			continue
		}
		out.Anomalies = append(out.Anomalies, vc.Warnings...)
		vcs = append(vcs, vc)
	}

	groups, orphans := Group(eventID, vcs)
	out.Anomalies = append(out.Anomalies, orphans...)

	for categoryID, members := range groups {
		cc, excluded := Rank(categoryID, members, p)
		out.Anomalies = append(out.Anomalies, excluded...)
		st, missing := Assemble(cc, lookup)
		out.Anomalies = append(out.Anomalies, missing...)
		out.Categories = append(out.Categories, st)
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		a, b := out.Categories[i], out.Categories[j]
		if a.CategoryName != b.CategoryName {
			return a.CategoryName < b.CategoryName
		}
		return a.CategoryID < b.CategoryID
	})
	sortAnomalies(out.Anomalies)
	return out
}

// ClassifyStage classifies a single stage: only results on the stage with the
// given order number are considered, and entrants without one are not listed.
// An unknown order yields no categories.
func ClassifyStage(snap model.Snapshot, stageOrder int, lookup Lookup, p Policy) Classification {
	scoped := model.Snapshot{Event: snap.Event}
	ids := map[int64]bool{}
	for _, s := range snap.Stages {
		if s.EventID == snap.Event.ID && s.OrderNumber == stageOrder {
			scoped.Stages = append(scoped.Stages, s)
			ids[s.ID] = true
		}
	}
	for _, r := range snap.Results {
		if ids[r.StageID] {
			scoped.Results = append(scoped.Results, r)
		}
	}
	c := Classify(scoped, lookup, p)
	c.StageOrder = &stageOrder
	return c
}

// FilterCategory narrows a classification to one category. Anomalies are kept
// whole: vehicles excluded from ranking have no category to filter by.
func FilterCategory(c Classification, categoryID int64) Classification {
	out := c
	out.Categories = []Standing{}
	for _, st := range c.Categories {
		if st.CategoryID == categoryID {
			out.Categories = append(out.Categories, st)
		}
	}
	return out
}

func sortAnomalies(as []Anomaly) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].VehicleID != as[j].VehicleID {
			return as[i].VehicleID < as[j].VehicleID
		}
		if as[i].Kind != as[j].Kind {
			return as[i].Kind < as[j].Kind
		}
		return as[i].StageOrder < as[j].StageOrder
	})
}
