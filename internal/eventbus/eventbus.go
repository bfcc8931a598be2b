// Package eventbus decouples the protocol core from external consumers
// (websocket feed, metrics dashboards). The core only ever publishes;
// subscribers that fall behind lose events rather than stall the simulation.
package eventbus

import (
	"sync"

	"github.com/apex/log"
)

type EventType string

const (
	EventPacketGenerated EventType = "PACKET_GENERATED"
	EventPacketDelivered EventType = "PACKET_DELIVERED"
	EventPacketDropped   EventType = "PACKET_DROPPED"
	EventRouteAdded      EventType = "ROUTE_ADDED"
	EventRouteRemoved    EventType = "ROUTE_REMOVED"
	EventNodeMoved       EventType = "NODE_MOVED"
	EventNodeSlept       EventType = "NODE_SLEPT"
	EventCollision       EventType = "COLLISION"
)

// RouteEntry mirrors a routing-table row for ROUTE_ADDED/ROUTE_REMOVED
// events.
type RouteEntry struct {
	Destination int `json:"destination"`
	NextHop     int `json:"next_hop"`
	HopCount    int `json:"hop_count"`
	SeqNum      int `json:"seq_num"`
}

// Event is the JSON-friendly payload pushed to subscribers. Timestamp is
// simulated time in µs.
type Event struct {
	Type      EventType   `json:"type"`
	NodeID    int         `json:"node_id"`
	OtherID   int         `json:"other_id,omitempty"`
	PacketID  int         `json:"packet_id,omitempty"`
	Route     *RouteEntry `json:"route,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
	Z         float64     `json:"z,omitempty"`
	Timestamp float64     `json:"timestamp"`
}

// Bus manages a set of subscribers and publishes events to them.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

func New() *Bus {
	return &Bus{subscribers: make([]chan Event, 0)}
}

// Publish sends an event to all subscribers. Sends are non-blocking: a full
// subscriber channel drops the event so the simulation never waits on a slow
// consumer.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- e:
		default:
			log.Debug("eventbus: dropping event, subscriber channel full")
		}
	}
}

// Subscribe returns a new channel that will receive published events.
func (b *Bus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 256)
	b.subscribers = append(b.subscribers, ch)
	return ch
}
