// Package csvimport reads stage results exported by timing systems as CSV.
//
// The first row is a header. stage_order and vehicle_id are required; the
// optional columns are timestamp (RFC 3339), elapsed_seconds, penalty_waypoint,
// penalty_speed and discount_claim. Duration columns accept anything
// integrations.ParseSeconds does. Unknown columns are ignored.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"rallytiming/internal/integrations"
)

const (
	colStageOrder      = "stage_order"
	colVehicleID       = "vehicle_id"
	colTimestamp       = "timestamp"
	colElapsed         = "elapsed_seconds"
	colPenaltyWaypoint = "penalty_waypoint"
	colPenaltySpeed    = "penalty_speed"
	colDiscountClaim   = "discount_claim"
)

var ErrMissingColumn = errors.New("missing required column")

type Adapter struct{}

func (Adapter) Name() string { return "csv" }

// Parse never fails on a bad data row; those are returned as rejects with
// their 1-based line number. Only an unreadable header is an error.
func (Adapter) Parse(r io.Reader) (integrations.Batch, error) {
	var batch integrations.Batch
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return batch, fmt.Errorf("empty file: %w", ErrMissingColumn)
	}
	if err != nil {
		return batch, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, req := range []string{colStageOrder, colVehicleID} {
		if _, ok := cols[req]; !ok {
			return batch, fmt.Errorf("%s: %w", req, ErrMissingColumn)
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return batch, fmt.Errorf("read csv: %w", err)
			}
			batch.Rejects = append(batch.Rejects, integrations.Reject{Line: pe.StartLine, Reason: pe.Err.Error()})
			continue
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		row, err := convert(rec, cols)
		if err != nil {
			batch.Rejects = append(batch.Rejects, integrations.Reject{Line: line, Reason: err.Error()})
			continue
		}
		row.Line = line
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func convert(rec []string, cols map[string]int) (integrations.Row, error) {
	var row integrations.Row
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	order, err := strconv.Atoi(field(colStageOrder))
	if err != nil || order <= 0 {
		return row, fmt.Errorf("invalid %s %q", colStageOrder, field(colStageOrder))
	}
	row.StageOrder = order
	vid, err := strconv.ParseInt(field(colVehicleID), 10, 64)
	if err != nil || vid <= 0 {
		return row, fmt.Errorf("invalid %s %q", colVehicleID, field(colVehicleID))
	}
	row.VehicleID = vid

	if ts := field(colTimestamp); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return row, fmt.Errorf("invalid %s %q", colTimestamp, ts)
		}
		row.Timestamp = &t
	}
	for _, d := range []struct {
		col string
		dst **int64
	}{
		{colElapsed, &row.ElapsedTimeSeconds},
		{colPenaltyWaypoint, &row.PenaltyWaypoint},
		{colPenaltySpeed, &row.PenaltySpeed},
		{colDiscountClaim, &row.DiscountClaim},
	} {
		v, err := integrations.ParseSeconds(field(d.col))
		if err != nil {
			return row, fmt.Errorf("%s: %w", d.col, err)
		}
		*d.dst = v
	}
	return row, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
