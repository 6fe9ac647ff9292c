package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"rallytiming/internal/model"
)

// Store is the persistence interface behind the classification service: a
// result store that reads consistent event snapshots, and the vehicle
// directory used for display metadata.
type Store interface {
	// Snapshot reads
	GetEvent(ctx context.Context, eventID int64) (model.Event, error)
	// EventSnapshot also fills Snapshot.Vehicles from the same read.
	EventSnapshot(ctx context.Context, eventID int64) (model.Snapshot, error)
	VehicleMetadata(ctx context.Context, vehicleIDs []int64) (map[int64]model.VehicleMetadata, error)

	// Stage results
	ListResultsByEvent(ctx context.Context, eventID int64) ([]model.StageResult, error)
	GetResult(ctx context.Context, id int64) (model.StageResult, error)
	CreateResult(ctx context.Context, in model.StageResultInput) (model.StageResult, error)
	UpdateResult(ctx context.Context, id int64, patch model.StageResultPatch) (model.StageResult, error)
	DeleteResult(ctx context.Context, id int64) error
	ApplyPenalty(ctx context.Context, id int64, p model.Penalty) (model.StageResult, error)
	SetElapsedTimes(ctx context.Context, elapsed map[int64]int64) error

	// Stages
	StageByOrder(ctx context.Context, eventID int64, order int) (model.Stage, error)
	EventOfStage(ctx context.Context, stageID int64) (int64, error)

	// Event composition
	RegisterVehicle(ctx context.Context, eventID, vehicleID int64) error
	UnregisterVehicle(ctx context.Context, eventID, vehicleID int64) error
	AssignVehicleCategory(ctx context.Context, vehicleID, categoryID int64) (eventIDs []int64, err error)

	// Fixtures
	Seed(ctx context.Context, seed model.Seed) error
}

var ErrNotFound = errors.New("not found")

// LoadSeedFile reads a YAML fixture of events, stages, categories, users,
// vehicles, entrants and results.
func LoadSeedFile(path string) (model.Seed, error) {
	var seed model.Seed
	b, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed: %w", err)
	}
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return seed, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}

func driverName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func vehicleMetadata(v model.Vehicle, c *model.Category, u *model.User) model.VehicleMetadata {
	md := model.VehicleMetadata{
		VehicleID:  v.ID,
		Name:       v.Name,
		Plates:     v.Plates,
		SOAT:       v.SOAT,
		CategoryID: v.CategoryID,
		UserID:     v.UserID,
	}
	if c != nil {
		md.CategoryName = c.Name
	}
	if u != nil {
		md.DriverName = driverName(u.FirstName, u.LastName)
		md.UserPicture = optionalString(u.Picture)
		md.TeamName = optionalString(u.TeamName)
	}
	return md
}
