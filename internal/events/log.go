package events

import (
	"context"
	"sync"
)

const defaultLogCapacity = 10000

// Log is a bounded in-memory event history. When full, the oldest events
// are dropped.
type Log struct {
	mu       sync.Mutex
	events   []Event
	head     int // next write position
	count    int
	capacity int
	dropped  int64
}

// NewLog creates a log holding up to capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &Log{
		events:   make([]Event, capacity),
		capacity: capacity,
	}
}

func (l *Log) Publish(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == l.capacity {
		l.dropped++
	} else {
		l.count++
	}
	l.events[l.head] = event
	l.head = (l.head + 1) % l.capacity
	return nil
}

// Filter selects events from the log. Zero fields match everything.
type Filter struct {
	Type  Type
	Limit int
}

// List returns matching events oldest first. With a Limit, the newest Limit
// matches are returned.
func (l *Log) List(f Filter) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, l.count)
	start := (l.head - l.count + l.capacity) % l.capacity
	for i := range l.count {
		e := l.events[(start+i)%l.capacity]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Dropped returns how many events were evicted.
func (l *Log) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
