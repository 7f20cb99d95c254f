package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/supramm/canvas-connect/internal/realtime"
	"github.com/supramm/canvas-connect/internal/wire"
)

// Broker is an in-process pub/sub relay with the same contract as the
// hosted one: rooms keyed by a string, at-least-once fan-out to every
// subscriber of the room (sender included; self-echo suppression is the
// client's job), and presence callbacks on track/close. Used by tests
// and the demo client.
type Broker struct {
	mu    sync.Mutex
	rooms map[string][]*Memory
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{rooms: make(map[string][]*Memory)}
}

// Join returns a fresh transport bound to one room. Each session owns
// its transport exclusively.
func (b *Broker) Join(room string) *Memory {
	return &Memory{broker: b, room: room}
}

func (b *Broker) members(room string) []*Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Memory, len(b.rooms[room]))
	copy(out, b.rooms[room])
	return out
}

func (b *Broker) add(room string, m *Memory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms[room] = append(b.rooms[room], m)
}

func (b *Broker) remove(room string, m *Memory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	members := b.rooms[room]
	for i, other := range members {
		if other == m {
			b.rooms[room] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(b.rooms[room]) == 0 {
		delete(b.rooms, room)
	}
}

// Memory is one subscriber's handle on a Broker room.
type Memory struct {
	broker *Broker
	room   string

	mu         sync.Mutex
	onMessage  realtime.MessageFunc
	onPresence realtime.PresenceFunc
	status     realtime.StatusFunc
	self       *wire.Presence
	subscribed bool
	closed     bool
}

var _ realtime.Transport = (*Memory)(nil)

// Status registers the connection-state handler.
func (m *Memory) Status(fn realtime.StatusFunc) {
	m.mu.Lock()
	m.status = fn
	m.mu.Unlock()
}

// Subscribe registers the handlers and joins the room. The in-process
// broker connects immediately.
func (m *Memory) Subscribe(onMessage realtime.MessageFunc, onPresence realtime.PresenceFunc) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	if m.subscribed {
		m.mu.Unlock()
		return fmt.Errorf("already subscribed to room %s", m.room)
	}
	m.onMessage = onMessage
	m.onPresence = onPresence
	m.subscribed = true
	status := m.status
	m.mu.Unlock()

	m.broker.add(m.room, m)
	if status != nil {
		status(realtime.StateConnected, "subscribed to room "+m.room)
	}
	return nil
}

// Publish fans the envelope out to every subscriber of the room,
// synchronously and in registration order. The broker gives no ordering
// guarantee across publishers.
func (m *Memory) Publish(_ context.Context, msg wire.Message) error {
	m.mu.Lock()
	if m.closed || !m.subscribed {
		m.mu.Unlock()
		return fmt.Errorf("not connected to room %s", m.room)
	}
	m.mu.Unlock()

	for _, member := range m.broker.members(m.room) {
		member.deliver(msg)
	}
	return nil
}

// Track announces presence: existing members learn about us, and we
// learn about every member already tracked.
func (m *Memory) Track(_ context.Context, self wire.Presence) error {
	m.mu.Lock()
	if m.closed || !m.subscribed {
		m.mu.Unlock()
		return fmt.Errorf("not connected to room %s", m.room)
	}
	m.self = &self
	m.mu.Unlock()

	for _, member := range m.broker.members(m.room) {
		if member == m {
			continue
		}
		member.deliverPresence(wire.TypePresenceJoin, self)
		if peer := member.presence(); peer != nil {
			m.deliverPresence(wire.TypePresenceJoin, *peer)
		}
	}
	return nil
}

// Close leaves the room and emits a leave event for tracked presence.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	self := m.self
	status := m.status
	m.mu.Unlock()

	m.broker.remove(m.room, m)
	if self != nil {
		for _, member := range m.broker.members(m.room) {
			member.deliverPresence(wire.TypePresenceLeave, *self)
		}
	}
	if status != nil {
		status(realtime.StateDisconnected, "left room "+m.room)
	}
	return nil
}

func (m *Memory) deliver(msg wire.Message) {
	m.mu.Lock()
	fn := m.onMessage
	closed := m.closed
	m.mu.Unlock()
	if fn != nil && !closed {
		fn(msg)
	}
}

func (m *Memory) deliverPresence(event wire.Type, peer wire.Presence) {
	m.mu.Lock()
	fn := m.onPresence
	closed := m.closed
	m.mu.Unlock()
	if fn != nil && !closed {
		fn(event, peer)
	}
}

func (m *Memory) presence() *wire.Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self == nil {
		return nil
	}
	p := *m.self
	return &p
}
