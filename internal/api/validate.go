package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sosodev/duration"

	"rallytiming/internal/model"
)

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// classificationQuery reads the optional categoryId and stage filters.
func classificationQuery(q url.Values) (*int64, *int, error) {
	var categoryID *int64
	var stage *int
	if v := q.Get("categoryId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, nil, fmt.Errorf("invalid categoryId: %q", v)
		}
		categoryID = &id
	}
	if v := q.Get("stage"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, nil, fmt.Errorf("invalid stage: %q", v)
		}
		stage = &n
	}
	return categoryID, stage, nil
}

var penaltyParams = []string{"penaltyWaypoint", "penaltySpeed", "discountClaim"}

func hasPenaltyParams(q url.Values) bool {
	for _, p := range penaltyParams {
		if _, ok := q[p]; ok {
			return true
		}
	}
	return false
}

// penaltyFromQuery reads ISO-8601 durations (PT30S). An empty or unparseable
// value counts as zero seconds.
func penaltyFromQuery(q url.Values) model.Penalty {
	secs := func(name string) *int64 {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			return model.Int64(0)
		}
		d, err := duration.Parse(strings.ToUpper(v))
		if err != nil {
			return model.Int64(0)
		}
		return model.Int64(int64(d.ToTimeDuration().Seconds()))
	}
	return model.Penalty{
		PenaltyWaypoint: secs("penaltyWaypoint"),
		PenaltySpeed:    secs("penaltySpeed"),
		DiscountClaim:   secs("discountClaim"),
	}
}

func validatePenalty(p model.Penalty) error {
	for name, v := range map[string]*int64{
		"penaltyWaypointSeconds": p.PenaltyWaypoint,
		"penaltySpeedSeconds":    p.PenaltySpeed,
		"discountClaimSeconds":   p.DiscountClaim,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	return nil
}

func validateResultInput(in model.StageResultInput) error {
	if in.ElapsedTimeSeconds != nil && *in.ElapsedTimeSeconds < 0 {
		return fmt.Errorf("elapsedTimeSeconds must be >= 0")
	}
	if err := validatePenalty(model.Penalty{PenaltyWaypoint: in.PenaltyWaypoint, PenaltySpeed: in.PenaltySpeed, DiscountClaim: in.DiscountClaim}); err != nil {
		return err
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return fmt.Errorf("latitude/longitude out of range")
	}
	return nil
}
