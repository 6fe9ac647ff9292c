// Package cache holds computed classifications keyed by event and view.
// Entries are invalidated per event whenever a write touches that event.
package cache

import (
	"context"
	"strconv"

	"rallytiming/internal/classify"
)

// Full is the view of the whole event; per-stage views use StageView.
const Full = "full"

func StageView(order int) string { return "stage:" + strconv.Itoa(order) }

type Key struct {
	EventID int64
	View    string
}

type Cache interface {
	Get(ctx context.Context, key Key) (classify.Classification, bool, error)
	Put(ctx context.Context, key Key, c classify.Classification) error
	// Invalidate drops every view of an event.
	Invalidate(ctx context.Context, eventID int64) error
}

// Disabled never stores anything.
type Disabled struct{}

func (Disabled) Get(context.Context, Key) (classify.Classification, bool, error) {
	return classify.Classification{}, false, nil
}
func (Disabled) Put(context.Context, Key, classify.Classification) error { return nil }
func (Disabled) Invalidate(context.Context, int64) error                 { return nil }
