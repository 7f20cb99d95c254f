package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/supramm/canvas-connect/internal/canvas"
	"github.com/supramm/canvas-connect/internal/wire"
)

// Handlers are the callbacks a Channel feeds. All may be nil; a nil
// handler drops the event. Handlers are invoked from the transport's
// delivery goroutine.
type Handlers struct {
	// OnOperation receives committed history operations: stroke_end as
	// an add, plus undo/redo/clear. These are the only messages that may
	// mutate canvas state on a receiving peer.
	OnOperation func(op canvas.Operation)

	// OnStrokeStart and OnStrokeUpdate are presentation hints for live
	// previews of a peer's in-progress stroke. They must not touch the
	// committed stroke list.
	OnStrokeStart  func(authorID string, start wire.StrokeStart)
	OnStrokeUpdate func(authorID string, update wire.StrokeUpdate)

	// OnCursor receives peer cursor positions.
	OnCursor func(authorID string, cursor wire.CursorMove)

	// OnJoin and OnLeave receive membership changes.
	OnJoin  func(peer wire.Presence)
	OnLeave func(peerID string)

	// OnStatus receives connection state changes.
	OnStatus func(state ConnState, detail string)
}

// Channel translates between in-process actions and wire messages for one
// client in one room. Incoming messages authored by the local client are
// ignored (no self-echo); unknown or malformed messages are dropped
// without surfacing an error. A disconnect flips the state and is
// reported, but never tears down local drawing capability.
type Channel struct {
	clientID  string
	transport Transport
	handlers  Handlers

	mu     sync.RWMutex
	state  ConnState
	detail string
}

// NewChannel binds a transport to a set of handlers. The channel starts
// disconnected; call Join to subscribe and announce presence.
func NewChannel(clientID string, t Transport, h Handlers) *Channel {
	return &Channel{
		clientID:  clientID,
		transport: t,
		handlers:  h,
		state:     StateConnecting,
		detail:    "not joined",
	}
}

// Join subscribes to the room and announces local presence. Local drawing
// works before, during, and after this call; a failed join only leaves
// the channel disconnected.
func (c *Channel) Join(ctx context.Context, self wire.Presence) error {
	c.transport.Status(c.onStatus)
	if err := c.transport.Subscribe(c.onMessage, c.onPresence); err != nil {
		c.onStatus(StateDisconnected, "subscribe failed: "+err.Error())
		return err
	}
	if err := c.transport.Track(ctx, self); err != nil {
		log.Printf("[Channel] Presence track failed: %v", err)
	}
	return nil
}

// Close leaves the room. The channel must not be reused afterwards.
func (c *Channel) Close() error {
	return c.transport.Close()
}

// State returns the connection state and a human-readable detail.
func (c *Channel) State() (ConnState, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.detail
}

// SendStrokeStart announces a new in-progress stroke seeded with its
// first point.
func (c *Channel) SendStrokeStart(ctx context.Context, s canvas.Stroke) {
	var first []canvas.Point
	if len(s.Points) > 0 {
		first = s.Points[:1]
	}
	c.publish(ctx, wire.TypeStrokeStart, wire.StrokeStart{
		ID:     s.ID,
		Tool:   s.Tool,
		Color:  s.Color,
		Width:  s.Width,
		Points: first,
	})
}

// SendStrokeUpdate carries the points added since the last update.
func (c *Channel) SendStrokeUpdate(ctx context.Context, strokeID string, delta []canvas.Point) {
	c.publish(ctx, wire.TypeStrokeUpdate, wire.StrokeUpdate{ID: strokeID, Points: delta})
}

// SendStrokeEnd carries the complete immutable stroke. This is the only
// message that causes peers to commit.
func (c *Channel) SendStrokeEnd(ctx context.Context, s canvas.Stroke) {
	c.publish(ctx, wire.TypeStrokeEnd, s)
}

// SendCursor is sent on every pointer move, unthrottled at this level.
func (c *Channel) SendCursor(ctx context.Context, pos canvas.Point, drawing bool) {
	c.publish(ctx, wire.TypeCursorMove, wire.CursorMove{Position: pos, IsDrawing: drawing})
}

// SendUndo, SendRedo, and SendClear carry no payload; the receiving side
// re-derives the result from its own local state.
func (c *Channel) SendUndo(ctx context.Context)  { c.publish(ctx, wire.TypeUndo, nil) }
func (c *Channel) SendRedo(ctx context.Context)  { c.publish(ctx, wire.TypeRedo, nil) }
func (c *Channel) SendClear(ctx context.Context) { c.publish(ctx, wire.TypeClear, nil) }

func (c *Channel) publish(ctx context.Context, t wire.Type, payload any) {
	msg, err := wire.New(t, c.clientID, payload)
	if err != nil {
		log.Printf("[Channel] Failed to build %s: %v", t, err)
		return
	}
	if err := c.transport.Publish(ctx, msg); err != nil {
		// Dropped while disconnected. Local state already moved on; there
		// is no queued retransmission on reconnect.
		log.Printf("[Channel] Dropped %s: %v", t, err)
	}
}

// onMessage is the single dispatch site over the wire kinds.
func (c *Channel) onMessage(m wire.Message) {
	if m.AuthorID == c.clientID {
		return // self-echo
	}

	switch m.Type {
	case wire.TypeStrokeStart:
		var start wire.StrokeStart
		if err := m.DecodeData(&start); err != nil {
			log.Printf("[Channel] Dropping malformed stroke_start: %v", err)
			return
		}
		if c.handlers.OnStrokeStart != nil {
			c.handlers.OnStrokeStart(m.AuthorID, start)
		}

	case wire.TypeStrokeUpdate:
		var update wire.StrokeUpdate
		if err := m.DecodeData(&update); err != nil {
			log.Printf("[Channel] Dropping malformed stroke_update: %v", err)
			return
		}
		if c.handlers.OnStrokeUpdate != nil {
			c.handlers.OnStrokeUpdate(m.AuthorID, update)
		}

	case wire.TypeStrokeEnd:
		var stroke canvas.Stroke
		if err := m.DecodeData(&stroke); err != nil {
			log.Printf("[Channel] Dropping malformed stroke_end: %v", err)
			return
		}
		if c.handlers.OnOperation != nil {
			c.handlers.OnOperation(canvas.Operation{
				Kind:      canvas.OpAdd,
				Stroke:    &stroke,
				AuthorID:  m.AuthorID,
				Timestamp: m.Timestamp,
			})
		}

	case wire.TypeCursorMove:
		var cursor wire.CursorMove
		if err := m.DecodeData(&cursor); err != nil {
			return
		}
		if c.handlers.OnCursor != nil {
			c.handlers.OnCursor(m.AuthorID, cursor)
		}

	case wire.TypeUndo:
		c.forwardHistory(canvas.OpUndo, m)
	case wire.TypeRedo:
		c.forwardHistory(canvas.OpRedo, m)
	case wire.TypeClear:
		c.forwardHistory(canvas.OpClear, m)

	case wire.TypePresenceJoin, wire.TypePresenceLeave:
		// Membership travels on the transport's presence channel; an
		// envelope with these kinds on the message channel is ignored.

	default:
		log.Printf("[Channel] Dropping unknown message type %q", m.Type)
	}
}

func (c *Channel) forwardHistory(kind canvas.OpKind, m wire.Message) {
	if c.handlers.OnOperation != nil {
		c.handlers.OnOperation(canvas.Operation{
			Kind:      kind,
			AuthorID:  m.AuthorID,
			Timestamp: m.Timestamp,
		})
	}
}

func (c *Channel) onPresence(event wire.Type, peer wire.Presence) {
	if peer.ID == c.clientID {
		return
	}
	switch event {
	case wire.TypePresenceJoin:
		if c.handlers.OnJoin != nil {
			c.handlers.OnJoin(peer)
		}
	case wire.TypePresenceLeave:
		if c.handlers.OnLeave != nil {
			c.handlers.OnLeave(peer.ID)
		}
	}
}

func (c *Channel) onStatus(state ConnState, detail string) {
	c.mu.Lock()
	c.state = state
	c.detail = detail
	c.mu.Unlock()

	log.Printf("[Channel] Connection %s: %s", state, detail)
	if c.handlers.OnStatus != nil {
		c.handlers.OnStatus(state, detail)
	}
}
