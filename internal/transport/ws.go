package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/supramm/canvas-connect/internal/realtime"
	"github.com/supramm/canvas-connect/internal/wire"
)

// WSConfig configures one websocket connection to the relay.
type WSConfig struct {
	// URL is the full room endpoint, e.g. ws://host:8080/ws/board/my-room.
	URL string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (c *WSConfig) defaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// WS is the client side of the relay's websocket room endpoint. Every
// frame is one wire envelope; the presence kinds are routed to the
// presence handler, everything else to the message handler.
//
// On a dropped connection the transport redials with exponential backoff
// and re-announces presence. Messages published while disconnected are
// dropped — there is deliberately no queued retransmission, so peers may
// permanently miss what was drawn during an outage.
type WS struct {
	cfg    WSConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	conn       *websocket.Conn
	onMessage  realtime.MessageFunc
	onPresence realtime.PresenceFunc
	status     realtime.StatusFunc
	self       *wire.Presence
	subscribed bool
}

var _ realtime.Transport = (*WS)(nil)

// NewWS prepares a transport; nothing connects until Subscribe.
func NewWS(cfg WSConfig) *WS {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &WS{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Status registers the connection-state handler.
func (w *WS) Status(fn realtime.StatusFunc) {
	w.mu.Lock()
	w.status = fn
	w.mu.Unlock()
}

// Subscribe dials the relay and starts the read loop. The initial dial
// retries with backoff for a bounded window; afterwards reconnection is
// handled in the background.
func (w *WS) Subscribe(onMessage realtime.MessageFunc, onPresence realtime.PresenceFunc) error {
	w.mu.Lock()
	if w.subscribed {
		w.mu.Unlock()
		return fmt.Errorf("already subscribed to %s", w.cfg.URL)
	}
	w.onMessage = onMessage
	w.onPresence = onPresence
	w.subscribed = true
	w.mu.Unlock()

	w.report(realtime.StateConnecting, "dialing "+w.cfg.URL)

	conn, err := w.dial(30 * time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.cfg.URL, err)
	}
	w.setConn(conn)
	w.report(realtime.StateConnected, "subscribed to "+w.cfg.URL)

	go w.run(conn)
	return nil
}

// Publish writes one envelope. While disconnected the message is dropped
// with an error; the caller's local state has already moved on.
func (w *WS) Publish(_ context.Context, msg wire.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("not connected, dropping %s", msg.Type)
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, raw)
}

// Track announces local presence. The descriptor is kept and re-sent on
// every reconnect so the roster survives transient drops.
func (w *WS) Track(ctx context.Context, self wire.Presence) error {
	w.mu.Lock()
	w.self = &self
	w.mu.Unlock()

	msg, err := wire.New(wire.TypePresenceJoin, self.ID, self)
	if err != nil {
		return err
	}
	return w.Publish(ctx, msg)
}

// Close leaves the room. The relay emits the presence_leave on our
// behalf when the connection drops.
func (w *WS) Close() error {
	w.cancel()

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	w.report(realtime.StateDisconnected, "left "+w.cfg.URL)
	return nil
}

func (w *WS) dial(maxElapsed time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.HandshakeTimeout}

	var conn *websocket.Conn
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed

	err := backoff.Retry(func() error {
		c, _, err := dialer.DialContext(w.ctx, w.cfg.URL, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(policy, w.ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// run reads until the connection fails, then redials until Close.
func (w *WS) run(conn *websocket.Conn) {
	for {
		err := w.readLoop(conn)
		w.setConn(nil)

		if w.ctx.Err() != nil {
			return
		}
		w.report(realtime.StateDisconnected, "connection lost: "+err.Error())

		conn, err = w.dial(0) // retry until Close cancels
		if err != nil {
			return
		}
		w.setConn(conn)
		w.report(realtime.StateConnected, "reconnected to "+w.cfg.URL)
		w.announce()
	}
}

func (w *WS) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			log.Printf("[Transport] Dropping malformed frame: %v", err)
			continue
		}
		w.dispatch(msg)
	}
}

func (w *WS) dispatch(msg wire.Message) {
	w.mu.Lock()
	onMessage := w.onMessage
	onPresence := w.onPresence
	w.mu.Unlock()

	switch msg.Type {
	case wire.TypePresenceJoin, wire.TypePresenceLeave:
		var peer wire.Presence
		if err := msg.DecodeData(&peer); err != nil {
			log.Printf("[Transport] Dropping malformed presence: %v", err)
			return
		}
		if onPresence != nil {
			onPresence(msg.Type, peer)
		}
	default:
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// announce re-sends the tracked presence after a reconnect. Only the
// descriptor is replayed — never the messages missed while down.
func (w *WS) announce() {
	w.mu.Lock()
	self := w.self
	w.mu.Unlock()
	if self == nil {
		return
	}
	if err := w.Track(w.ctx, *self); err != nil {
		log.Printf("[Transport] Presence re-announce failed: %v", err)
	}
}

func (w *WS) setConn(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

func (w *WS) report(state realtime.ConnState, detail string) {
	w.mu.Lock()
	fn := w.status
	w.mu.Unlock()
	if fn != nil {
		fn(state, detail)
	}
}
