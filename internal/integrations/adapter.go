package integrations

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// TimingSource parses an export from an external timing system into stage
// result rows for one event.
type TimingSource interface {
	Name() string
	Parse(r io.Reader) (Batch, error)
}

// Row is one imported timing record. Stages are addressed by order number
// because timing systems do not know our stage ids.
type Row struct {
	Line               int
	StageOrder         int
	VehicleID          int64
	Timestamp          *time.Time
	ElapsedTimeSeconds *int64
	PenaltyWaypoint    *int64
	PenaltySpeed       *int64
	DiscountClaim      *int64
}

// Reject is a row that could not be imported.
type Reject struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type Batch struct {
	Rows    []Row
	Rejects []Reject
}

// ParseSeconds accepts whole seconds ("90"), an ISO-8601 duration ("PT1M30S")
// or h:mm:ss ("0:01:30"). Empty input is nil. Fractions are truncated.
// Negative values are rejected in every form.
func ParseSeconds(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return nil, fmt.Errorf("negative seconds %q", s)
		}
		return &n, nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		d, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		n := int64(d.ToTimeDuration() / time.Second)
		if d.Negative || n < 0 {
			return nil, fmt.Errorf("negative duration %q", s)
		}
		return &n, nil
	}
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		var total int64
		for _, p := range parts {
			v, err := strconv.ParseInt(p, 10, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("invalid clock time %q", s)
			}
			total = total*60 + v
		}
		return &total, nil
	}
	return nil, fmt.Errorf("invalid seconds %q", s)
}
