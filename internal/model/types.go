package model

import "time"

// Rally entities. Owned by the persistence layer; the classification core only reads them.

type Event struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Stage struct {
	ID          int64  `json:"id" yaml:"id"`
	EventID     int64  `json:"eventId" yaml:"eventId"`
	Name        string `json:"name" yaml:"name"`
	OrderNumber int    `json:"orderNumber" yaml:"orderNumber"`
	Neutralized bool   `json:"neutralized" yaml:"neutralized"`
}

type Category struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type User struct {
	ID        int64  `json:"id" yaml:"id"`
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
	Picture   string `json:"picture,omitempty" yaml:"picture"`
	TeamName  string `json:"teamName,omitempty" yaml:"teamName"`
}

type Vehicle struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Plates     string `json:"plates,omitempty" yaml:"plates"`
	SOAT       string `json:"soat,omitempty" yaml:"soat"`
	CategoryID *int64 `json:"categoryId,omitempty" yaml:"categoryId"`
	UserID     *int64 `json:"userId,omitempty" yaml:"userId"`
}

// StageResult is one vehicle's raw timing record for one stage. Every duration
// is whole seconds; nil means "not recorded".
type StageResult struct {
	ID                 int64      `json:"id"`
	StageID            int64      `json:"stageId"`
	VehicleID          int64      `json:"vehicleId"`
	Timestamp          *time.Time `json:"timestamp,omitempty"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	ElapsedTimeSeconds *int64     `json:"elapsedTimeSeconds"`
	PenaltyWaypoint    *int64     `json:"penaltyWaypointSeconds"`
	PenaltySpeed       *int64     `json:"penaltySpeedSeconds"`
	DiscountClaim      *int64     `json:"discountClaimSeconds"`
}

// Snapshot is a point-in-time read of everything one event's classification needs.
type Snapshot struct {
	Event    Event                     `json:"event"`
	Stages   []Stage                   `json:"stages"`
	Entrants []int64                   `json:"entrants"`
	Results  []StageResult             `json:"results"`
	Vehicles map[int64]VehicleMetadata `json:"vehicles"`
}

// VehicleIDs lists every vehicle with a result, then entrants without one,
// each once.
func (s Snapshot) VehicleIDs() []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, r := range s.Results {
		if !seen[r.VehicleID] {
			seen[r.VehicleID] = true
			out = append(out, r.VehicleID)
		}
	}
	for _, id := range s.Entrants {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// VehicleMetadata is the display projection of a vehicle joined with its category and driver.
type VehicleMetadata struct {
	VehicleID    int64   `json:"vehicleId"`
	Name         string  `json:"name"`
	Plates       string  `json:"plates,omitempty"`
	SOAT         string  `json:"soat,omitempty"`
	CategoryID   *int64  `json:"categoryId"`
	CategoryName string  `json:"categoryName,omitempty"`
	UserID       *int64  `json:"userId,omitempty"`
	DriverName   string  `json:"driverName"`
	UserPicture  *string `json:"userPicture"`
	TeamName     *string `json:"teamName"`
}

// StageResultInput creates a result. StageOrder may be used instead of StageID
// together with EventID (timing imports only know the stage order).
type StageResultInput struct {
	StageID            int64      `json:"stageId"`
	EventID            int64      `json:"eventId,omitempty"`
	StageOrder         int        `json:"stageOrder,omitempty"`
	VehicleID          int64      `json:"vehicleId"`
	Timestamp          *time.Time `json:"timestamp,omitempty"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	ElapsedTimeSeconds *int64     `json:"elapsedTimeSeconds"`
	PenaltyWaypoint    *int64     `json:"penaltyWaypointSeconds"`
	PenaltySpeed       *int64     `json:"penaltySpeedSeconds"`
	DiscountClaim      *int64     `json:"discountClaimSeconds"`
}

// StageResultPatch updates the non-nil fields of a result.
type StageResultPatch struct {
	StageID            *int64     `json:"stageId,omitempty"`
	VehicleID          *int64     `json:"vehicleId,omitempty"`
	Timestamp          *time.Time `json:"timestamp,omitempty"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	ElapsedTimeSeconds *int64     `json:"elapsedTimeSeconds,omitempty"`
}

// Penalty overwrites all three adjustment components of a result; nil clears one.
type Penalty struct {
	PenaltyWaypoint *int64 `json:"penaltyWaypointSeconds"`
	PenaltySpeed    *int64 `json:"penaltySpeedSeconds"`
	DiscountClaim   *int64 `json:"discountClaimSeconds"`
}

// Seed is the YAML fixture format accepted by both stores.
type Seed struct {
	Events     []Event      `yaml:"events"`
	Stages     []Stage      `yaml:"stages"`
	Categories []Category   `yaml:"categories"`
	Users      []User       `yaml:"users"`
	Vehicles   []Vehicle    `yaml:"vehicles"`
	Entrants   []Entrant    `yaml:"entrants"`
	Results    []SeedResult `yaml:"results"`
}

// Entrant registers a vehicle in an event.
type Entrant struct {
	EventID   int64 `yaml:"eventId"`
	VehicleID int64 `yaml:"vehicleId"`
}

// SeedResult is a fixture stage result. A non-zero ID makes reseeding
// replace the row instead of adding another one.
type SeedResult struct {
	ID                 int64      `yaml:"id"`
	StageID            int64      `yaml:"stageId"`
	VehicleID          int64      `yaml:"vehicleId"`
	Timestamp          *time.Time `yaml:"timestamp"`
	ElapsedTimeSeconds *int64     `yaml:"elapsedTimeSeconds"`
	PenaltyWaypoint    *int64     `yaml:"penaltyWaypointSeconds"`
	PenaltySpeed       *int64     `yaml:"penaltySpeedSeconds"`
	DiscountClaim      *int64     `yaml:"discountClaimSeconds"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
