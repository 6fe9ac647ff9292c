// Package standings is the boundary around the pure classification core: it
// reads consistent snapshots from the store, serves and fills the cache, and
// invalidates an event whenever a write touches it.
package standings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"rallytiming/internal/cache"
	"rallytiming/internal/classify"
	"rallytiming/internal/metrics"
	"rallytiming/internal/store"
)

var ErrInvalid = errors.New("invalid input")

// Query selects a view of an event's classification.
type Query struct {
	EventID    int64
	CategoryID *int64
	StageOrder *int
}

func (q Query) view() string {
	if q.StageOrder != nil {
		return cache.StageView(*q.StageOrder)
	}
	return cache.Full
}

type Service struct {
	store  store.Store
	cache  cache.Cache
	policy classify.Policy
	now    func() time.Time

	flight singleflight.Group
	mu     sync.Mutex
	gens   map[int64]uint64 // bumped on every write to an event
}

func NewService(st store.Store, c cache.Cache, p classify.Policy) *Service {
	if c == nil {
		c = cache.Disabled{}
	}
	return &Service{store: st, cache: c, policy: p, now: time.Now, gens: map[int64]uint64{}}
}

func (s *Service) Policy() classify.Policy { return s.policy }

// Classification returns the requested view, from cache when possible. The
// category filter is applied to the cached event or stage view.
func (s *Service) Classification(ctx context.Context, q Query) (classify.Classification, error) {
	key := cache.Key{EventID: q.EventID, View: q.view()}
	c, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.Printf("classification cache get event=%d view=%s: %v", q.EventID, key.View, err)
		metrics.ClassificationCache.WithLabelValues(viewKind(q), "error").Inc()
	case ok:
		metrics.ClassificationCache.WithLabelValues(viewKind(q), "hit").Inc()
	default:
		metrics.ClassificationCache.WithLabelValues(viewKind(q), "miss").Inc()
	}
	if !ok {
		gen := s.generation(q.EventID)
		flightKey := fmt.Sprintf("%d/%s/%d", q.EventID, key.View, gen)
		v, err, _ := s.flight.Do(flightKey, func() (any, error) {
			return s.compute(context.WithoutCancel(ctx), q, key, gen)
		})
		if err != nil {
			return classify.Classification{}, err
		}
		c = v.(classify.Classification)
	}
	if q.CategoryID != nil {
		c = classify.FilterCategory(c, *q.CategoryID)
	}
	return c, nil
}

func (s *Service) compute(ctx context.Context, q Query, key cache.Key, gen uint64) (classify.Classification, error) {
	snap, err := s.store.EventSnapshot(ctx, q.EventID)
	if err != nil {
		return classify.Classification{}, fmt.Errorf("snapshot event %d: %w", q.EventID, err)
	}
	md := classify.Directory(snap.Vehicles)

	start := time.Now()
	var c classify.Classification
	if q.StageOrder != nil {
		c = classify.ClassifyStage(snap, *q.StageOrder, md, s.policy)
	} else {
		c = classify.Classify(snap, md, s.policy)
	}
	metrics.ClassificationDuration.WithLabelValues(viewKind(q)).Observe(time.Since(start).Seconds())
	c.ID = uuid.NewString()
	c.ComputedAt = s.now().UTC()

	if n := len(c.Anomalies); n > 0 {
		log.Printf("classification event=%d view=%s id=%s anomalies=%d", q.EventID, key.View, c.ID, n)
		for _, a := range c.Anomalies {
			metrics.ClassificationAnomalies.WithLabelValues(string(a.Kind)).Inc()
		}
	}

	// A write that landed after our snapshot bumps the generation; never cache
	// a value computed from an older one.
	if s.generation(q.EventID) != gen {
		return c, nil
	}
	if err := s.cache.Put(ctx, key, c); err != nil {
		log.Printf("classification cache put event=%d view=%s: %v", q.EventID, key.View, err)
		return c, nil
	}
	if s.generation(q.EventID) != gen {
		s.invalidate(ctx, q.EventID)
	}
	return c, nil
}

func (s *Service) generation(eventID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[eventID]
}

// invalidate drops cached views of the events. A failed invalidation is
// logged and counted; the write that triggered it has already committed.
func (s *Service) invalidate(ctx context.Context, eventIDs ...int64) {
	seen := map[int64]bool{}
	for _, id := range eventIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		s.mu.Lock()
		s.gens[id]++
		s.mu.Unlock()
		if err := s.cache.Invalidate(ctx, id); err != nil {
			log.Printf("classification cache invalidate event=%d: %v", id, err)
			metrics.CacheInvalidationErrors.Inc()
		}
	}
}

func viewKind(q Query) string {
	if q.StageOrder != nil {
		return "stage"
	}
	return "event"
}
