package realtime

import (
	"context"

	"github.com/supramm/canvas-connect/internal/wire"
)

// ConnState is the channel's view of the transport connection.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// MessageFunc receives one decoded envelope from the room.
type MessageFunc func(msg wire.Message)

// PresenceFunc receives membership events. event is TypePresenceJoin or
// TypePresenceLeave; peer is the descriptor the member tracked.
type PresenceFunc func(event wire.Type, peer wire.Presence)

// StatusFunc receives connection state changes with a human-readable
// detail string.
type StatusFunc func(state ConnState, detail string)

// Transport is the contract required from the pub/sub relay. Delivery to
// other subscribers of the same room is at-least-once with no ordering
// guarantee. Implementations must tolerate handlers that are slow, and
// must never deliver after Close returns.
//
// One active session owns one transport instance exclusively; it is torn
// down with Close when the session ends.
type Transport interface {
	// Subscribe registers the handlers and connects. It reports initial
	// connection progress through the status handler registered with
	// Status.
	Subscribe(onMessage MessageFunc, onPresence PresenceFunc) error

	// Publish sends one envelope to the room. It does not block local
	// input processing; while disconnected it returns an error and the
	// message is dropped (no queued retransmission on reconnect).
	Publish(ctx context.Context, msg wire.Message) error

	// Track announces local presence to the room.
	Track(ctx context.Context, self wire.Presence) error

	// Status registers the connection-state handler. Must be called
	// before Subscribe.
	Status(fn StatusFunc)

	// Close leaves the room and releases the connection.
	Close() error
}
