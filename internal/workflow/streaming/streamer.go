// Package streaming fans the loop's snapshots and telemetry out to live
// subscribers: the gRPC watch stream and the websocket hub.
package streaming

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/engine"
)

type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventTelemetry EventType = "telemetry"
)

type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Snapshot  *engine.Snapshot  `json:"snapshot,omitempty"`
	Record    *telemetry.Record `json:"record,omitempty"`
}

const subscriberBuffer = 100

// EventStreamer is safe for concurrent use. Broadcast never blocks: a
// subscriber whose buffer is full misses the event.
type EventStreamer struct {
	mu          sync.RWMutex
	subscribers []chan *Event
	now         func() time.Time
	dropped     atomic.Uint64
}

func NewEventStreamer(now func() time.Time) *EventStreamer {
	if now == nil {
		now = time.Now
	}
	return &EventStreamer{now: now}
}

func (s *EventStreamer) Subscribe() <-chan *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *Event, subscriberBuffer)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *EventStreamer) Unsubscribe(ch <-chan *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			break
		}
	}
}

func (s *EventStreamer) Broadcast(event *Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *EventStreamer) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Dropped counts events lost to full subscriber buffers.
func (s *EventStreamer) Dropped() uint64 { return s.dropped.Load() }

// Emit makes the streamer a telemetry sink.
func (s *EventStreamer) Emit(r telemetry.Record) {
	s.Broadcast(&Event{Type: EventTelemetry, Timestamp: s.now(), Record: &r})
}

func (s *EventStreamer) PublishSnapshot(snap *engine.Snapshot) {
	s.Broadcast(&Event{Type: EventSnapshot, Timestamp: snap.At, Snapshot: snap})
}

// SnapshotHook returns an engine snapshot hook that publishes every state
// change at once and otherwise at most one snapshot per interval, so the
// I/O levels and watchdog timers stay live without flooding subscribers.
func (s *EventStreamer) SnapshotHook(interval time.Duration) func(prev, next *engine.Snapshot) {
	var last time.Time
	return func(prev, next *engine.Snapshot) {
		if prev != nil && next.SameState(prev) && next.At.Sub(last) < interval {
			return
		}
		last = next.At
		s.PublishSnapshot(next)
	}
}
