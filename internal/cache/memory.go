package cache

import (
	"context"
	"sync"
	"time"

	"rallytiming/internal/classify"
)

type entry struct {
	value   classify.Classification
	expires time.Time
}

// Memory is a process-local cache. A zero ttl keeps entries until invalidated.
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	events map[int64]map[string]entry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, events: map[int64]map[string]entry{}}
}

func (m *Memory) Get(ctx context.Context, key Key) (classify.Classification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[key.EventID][key.View]
	if !ok {
		return classify.Classification{}, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.events[key.EventID], key.View)
		return classify.Classification{}, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Put(ctx context.Context, key Key, c classify.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := m.events[key.EventID]
	if views == nil {
		views = map[string]entry{}
		m.events[key.EventID] = views
	}
	e := entry{value: c}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	views[key.View] = e
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, eventID int64) error {
	m.mu.Lock()
	delete(m.events, eventID)
	m.mu.Unlock()
	return nil
}
