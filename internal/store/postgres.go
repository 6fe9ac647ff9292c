package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rallytiming/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// MigrateDir applies every *.sql file in dir in lexical order. Migrations are
// written to be idempotent (CREATE ... IF NOT EXISTS).
func (p *Postgres) MigrateDir(dir string) error {
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration: %w", err)
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

const resultColumns = `id, stage_id, vehicle_id, recorded_at, latitude, longitude, elapsed_time_seconds, penalty_waypoint_seconds, penalty_speed_seconds, discount_claim_seconds`

const eventResultsQuery = `SELECT r.id, r.stage_id, r.vehicle_id, r.recorded_at, r.latitude, r.longitude,
       r.elapsed_time_seconds, r.penalty_waypoint_seconds, r.penalty_speed_seconds, r.discount_claim_seconds
  FROM stage_results r JOIN stages s ON s.id = r.stage_id
 WHERE s.event_id = $1
 ORDER BY s.order_number, r.recorded_at NULLS LAST, r.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (model.StageResult, error) {
	var r model.StageResult
	var ts sql.NullTime
	var elapsed, waypoint, speed, discount sql.NullInt64
	if err := row.Scan(&r.ID, &r.StageID, &r.VehicleID, &ts, &r.Latitude, &r.Longitude, &elapsed, &waypoint, &speed, &discount); err != nil {
		return r, err
	}
	if ts.Valid {
		t := ts.Time
		r.Timestamp = &t
	}
	r.ElapsedTimeSeconds = int64Ptr(elapsed)
	r.PenaltyWaypoint = int64Ptr(waypoint)
	r.PenaltySpeed = int64Ptr(speed)
	r.DiscountClaim = int64Ptr(discount)
	return r, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return model.Int64(v.Int64)
}

func noRows(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what, id)
	}
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryResults(ctx context.Context, q queryer, eventID int64) ([]model.StageResult, error) {
	rows, err := q.QueryContext(ctx, eventResultsQuery, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.StageResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetEvent(ctx context.Context, eventID int64) (model.Event, error) {
	var e model.Event
	err := p.db.QueryRowContext(ctx, `SELECT id, name FROM events WHERE id=$1`, eventID).Scan(&e.ID, &e.Name)
	return e, noRows(err, "event", eventID)
}

// EventSnapshot reads stages, entrants, results and vehicle metadata inside one
// repeatable-read transaction, so a classification never mixes two versions of
// the event.
func (p *Postgres) EventSnapshot(ctx context.Context, eventID int64) (model.Snapshot, error) {
	snap := model.Snapshot{Stages: []model.Stage{}, Entrants: []int64{}}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return snap, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `SELECT id, name FROM events WHERE id=$1`, eventID).Scan(&snap.Event.ID, &snap.Event.Name); err != nil {
		return snap, noRows(err, "event", eventID)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, event_id, name, order_number, neutralized FROM stages WHERE event_id=$1 ORDER BY order_number, id`, eventID)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var s model.Stage
		if err := rows.Scan(&s.ID, &s.EventID, &s.Name, &s.OrderNumber, &s.Neutralized); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Stages = append(snap.Stages, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT vehicle_id FROM event_vehicles WHERE event_id=$1 ORDER BY vehicle_id`, eventID)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var vid int64
		if err := rows.Scan(&vid); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Entrants = append(snap.Entrants, vid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	if snap.Results, err = queryResults(ctx, tx, eventID); err != nil {
		return snap, err
	}
	if snap.Vehicles, err = queryMetadata(ctx, tx, snap.VehicleIDs()); err != nil {
		return snap, err
	}
	return snap, tx.Commit()
}

func (p *Postgres) VehicleMetadata(ctx context.Context, vehicleIDs []int64) (map[int64]model.VehicleMetadata, error) {
	return queryMetadata(ctx, p.db, vehicleIDs)
}

func queryMetadata(ctx context.Context, q queryer, vehicleIDs []int64) (map[int64]model.VehicleMetadata, error) {
	out := make(map[int64]model.VehicleMetadata, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `
SELECT v.id, v.name, COALESCE(v.plates,''), COALESCE(v.soat,''), v.category_id, COALESCE(c.name,''),
       v.user_id, COALESCE(u.first_name,''), COALESCE(u.last_name,''), COALESCE(u.picture,''), COALESCE(u.team_name,'')
  FROM vehicles v
  LEFT JOIN categories c ON c.id = v.category_id
  LEFT JOIN users u ON u.id = v.user_id
 WHERE v.id = ANY($1)`, vehicleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var md model.VehicleMetadata
		var catID, userID sql.NullInt64
		var first, last, picture, team string
		if err := rows.Scan(&md.VehicleID, &md.Name, &md.Plates, &md.SOAT, &catID, &md.CategoryName,
			&userID, &first, &last, &picture, &team); err != nil {
			return nil, err
		}
		md.CategoryID = int64Ptr(catID)
		md.UserID = int64Ptr(userID)
		if md.UserID != nil {
			md.DriverName = driverName(first, last)
			md.UserPicture = optionalString(picture)
			md.TeamName = optionalString(team)
		}
		out[md.VehicleID] = md
	}
	return out, rows.Err()
}

func (p *Postgres) ListResultsByEvent(ctx context.Context, eventID int64) ([]model.StageResult, error) {
	if _, err := p.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return queryResults(ctx, p.db, eventID)
}

func (p *Postgres) GetResult(ctx context.Context, id int64) (model.StageResult, error) {
	r, err := scanResult(p.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM stage_results WHERE id=$1`, id))
	return r, noRows(err, "stage result", id)
}

func (p *Postgres) exists(ctx context.Context, q queryer, table string, id int64) error {
	var ok bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return notFound(strings.TrimSuffix(table, "s"), id)
	}
	return nil
}

func (p *Postgres) CreateResult(ctx context.Context, in model.StageResultInput) (model.StageResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StageResult{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := p.exists(ctx, tx, "stages", in.StageID); err != nil {
		return model.StageResult{}, err
	}
	if err := p.exists(ctx, tx, "vehicles", in.VehicleID); err != nil {
		return model.StageResult{}, err
	}
	r, err := scanResult(tx.QueryRowContext(ctx, `
INSERT INTO stage_results (stage_id, vehicle_id, recorded_at, latitude, longitude, elapsed_time_seconds, penalty_waypoint_seconds, penalty_speed_seconds, discount_claim_seconds)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING `+resultColumns,
		in.StageID, in.VehicleID, in.Timestamp, in.Latitude, in.Longitude,
		in.ElapsedTimeSeconds, in.PenaltyWaypoint, in.PenaltySpeed, in.DiscountClaim))
	if err != nil {
		return r, err
	}
	return r, tx.Commit()
}

func (p *Postgres) UpdateResult(ctx context.Context, id int64, patch model.StageResultPatch) (model.StageResult, error) {
	if patch.StageID != nil {
		if err := p.exists(ctx, p.db, "stages", *patch.StageID); err != nil {
			return model.StageResult{}, err
		}
	}
	if patch.VehicleID != nil {
		if err := p.exists(ctx, p.db, "vehicles", *patch.VehicleID); err != nil {
			return model.StageResult{}, err
		}
	}
	r, err := scanResult(p.db.QueryRowContext(ctx, `
UPDATE stage_results SET
       stage_id = COALESCE($2, stage_id),
       vehicle_id = COALESCE($3, vehicle_id),
       recorded_at = COALESCE($4, recorded_at),
       latitude = COALESCE($5, latitude),
       longitude = COALESCE($6, longitude),
       elapsed_time_seconds = COALESCE($7, elapsed_time_seconds)
 WHERE id = $1
RETURNING `+resultColumns,
		id, patch.StageID, patch.VehicleID, patch.Timestamp, patch.Latitude, patch.Longitude, patch.ElapsedTimeSeconds))
	return r, noRows(err, "stage result", id)
}

func (p *Postgres) DeleteResult(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM stage_results WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("stage result", id)
	}
	return nil
}

func (p *Postgres) ApplyPenalty(ctx context.Context, id int64, pen model.Penalty) (model.StageResult, error) {
	r, err := scanResult(p.db.QueryRowContext(ctx, `
UPDATE stage_results SET penalty_waypoint_seconds=$2, penalty_speed_seconds=$3, discount_claim_seconds=$4
 WHERE id=$1
RETURNING `+resultColumns, id, pen.PenaltyWaypoint, pen.PenaltySpeed, pen.DiscountClaim))
	return r, noRows(err, "stage result", id)
}

func (p *Postgres) SetElapsedTimes(ctx context.Context, elapsed map[int64]int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for id, secs := range elapsed {
		res, err := tx.ExecContext(ctx, `UPDATE stage_results SET elapsed_time_seconds=$2 WHERE id=$1`, id, secs)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("stage result", id)
		}
	}
	return tx.Commit()
}

func (p *Postgres) StageByOrder(ctx context.Context, eventID int64, order int) (model.Stage, error) {
	var s model.Stage
	err := p.db.QueryRowContext(ctx, `SELECT id, event_id, name, order_number, neutralized FROM stages WHERE event_id=$1 AND order_number=$2 ORDER BY id LIMIT 1`, eventID, order).
		Scan(&s.ID, &s.EventID, &s.Name, &s.OrderNumber, &s.Neutralized)
	return s, noRows(err, "stage order", int64(order))
}

func (p *Postgres) EventOfStage(ctx context.Context, stageID int64) (int64, error) {
	var eventID int64
	err := p.db.QueryRowContext(ctx, `SELECT event_id FROM stages WHERE id=$1`, stageID).Scan(&eventID)
	return eventID, noRows(err, "stage", stageID)
}

func (p *Postgres) RegisterVehicle(ctx context.Context, eventID, vehicleID int64) error {
	if err := p.exists(ctx, p.db, "events", eventID); err != nil {
		return err
	}
	if err := p.exists(ctx, p.db, "vehicles", vehicleID); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO event_vehicles (event_id, vehicle_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, eventID, vehicleID)
	return err
}

func (p *Postgres) UnregisterVehicle(ctx context.Context, eventID, vehicleID int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM event_vehicles WHERE event_id=$1 AND vehicle_id=$2`, eventID, vehicleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("entrant", vehicleID)
	}
	return nil
}

func (p *Postgres) AssignVehicleCategory(ctx context.Context, vehicleID, categoryID int64) ([]int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := p.exists(ctx, tx, "categories", categoryID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE vehicles SET category_id=$2 WHERE id=$1`, vehicleID, categoryID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("vehicle", vehicleID)
	}
	rows, err := tx.QueryContext(ctx, `
SELECT event_id FROM event_vehicles WHERE vehicle_id=$1
UNION
SELECT s.event_id FROM stage_results r JOIN stages s ON s.id = r.stage_id WHERE r.vehicle_id=$1
ORDER BY 1`, vehicleID)
	if err != nil {
		return nil, err
	}
	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

// Seed upserts a fixture by primary key and moves the id sequences past it.
// Results without an id are appended on every call.
func (p *Postgres) Seed(ctx context.Context, seed model.Seed) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range seed.Events {
		if _, err := tx.ExecContext(ctx, `INSERT INTO events (id, name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`, e.ID, e.Name); err != nil {
			return fmt.Errorf("seed event %d: %w", e.ID, err)
		}
	}
	for _, c := range seed.Categories {
		if _, err := tx.ExecContext(ctx, `INSERT INTO categories (id, name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`, c.ID, c.Name); err != nil {
			return fmt.Errorf("seed category %d: %w", c.ID, err)
		}
	}
	for _, u := range seed.Users {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id, first_name, last_name, picture, team_name) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name, picture=EXCLUDED.picture, team_name=EXCLUDED.team_name`,
			u.ID, u.FirstName, u.LastName, nullIfEmpty(u.Picture), nullIfEmpty(u.TeamName)); err != nil {
			return fmt.Errorf("seed user %d: %w", u.ID, err)
		}
	}
	for _, v := range seed.Vehicles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO vehicles (id, name, plates, soat, category_id, user_id) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, plates=EXCLUDED.plates, soat=EXCLUDED.soat, category_id=EXCLUDED.category_id, user_id=EXCLUDED.user_id`,
			v.ID, v.Name, nullIfEmpty(v.Plates), nullIfEmpty(v.SOAT), v.CategoryID, v.UserID); err != nil {
			return fmt.Errorf("seed vehicle %d: %w", v.ID, err)
		}
	}
	for _, s := range seed.Stages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stages (id, event_id, name, order_number, neutralized) VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET event_id=EXCLUDED.event_id, name=EXCLUDED.name, order_number=EXCLUDED.order_number, neutralized=EXCLUDED.neutralized`,
			s.ID, s.EventID, s.Name, s.OrderNumber, s.Neutralized); err != nil {
			return fmt.Errorf("seed stage %d: %w", s.ID, err)
		}
	}
	for _, en := range seed.Entrants {
		if _, err := tx.ExecContext(ctx, `INSERT INTO event_vehicles (event_id, vehicle_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, en.EventID, en.VehicleID); err != nil {
			return fmt.Errorf("seed entrant %d/%d: %w", en.EventID, en.VehicleID, err)
		}
	}
	for _, r := range seed.Results {
		var err error
		if r.ID == 0 {
			_, err = tx.ExecContext(ctx, `INSERT INTO stage_results (stage_id, vehicle_id, recorded_at, elapsed_time_seconds, penalty_waypoint_seconds, penalty_speed_seconds, discount_claim_seconds)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				r.StageID, r.VehicleID, r.Timestamp, r.ElapsedTimeSeconds, r.PenaltyWaypoint, r.PenaltySpeed, r.DiscountClaim)
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO stage_results (id, stage_id, vehicle_id, recorded_at, elapsed_time_seconds, penalty_waypoint_seconds, penalty_speed_seconds, discount_claim_seconds)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET stage_id=EXCLUDED.stage_id, vehicle_id=EXCLUDED.vehicle_id, recorded_at=EXCLUDED.recorded_at,
       elapsed_time_seconds=EXCLUDED.elapsed_time_seconds, penalty_waypoint_seconds=EXCLUDED.penalty_waypoint_seconds,
       penalty_speed_seconds=EXCLUDED.penalty_speed_seconds, discount_claim_seconds=EXCLUDED.discount_claim_seconds`,
				r.ID, r.StageID, r.VehicleID, r.Timestamp, r.ElapsedTimeSeconds, r.PenaltyWaypoint, r.PenaltySpeed, r.DiscountClaim)
		}
		if err != nil {
			return fmt.Errorf("seed result stage %d vehicle %d: %w", r.StageID, r.VehicleID, err)
		}
	}
	for _, table := range []string{"events", "categories", "users", "vehicles", "stages", "stage_results"} {
		if _, err := tx.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('`+table+`','id'), COALESCE((SELECT MAX(id) FROM `+table+`), 0) + 1, false)`); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
