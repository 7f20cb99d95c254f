package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/supramm/canvas-connect/internal/wire"
)

// boardConn is the slice of the websocket connection the hub writes to.
// Satisfied by *websocket.Conn; tests swap in a fake.
type boardConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub manages all board rooms. The relay never interprets canvas
// semantics: frames other than presence are forwarded verbatim to every
// other member of the room, at-least-once, with no cross-publisher
// ordering guarantee.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	bridge *Bridge // optional cross-instance fan-out
}

// Room is one board with its connected clients.
type Room struct {
	Key string

	hub     *Hub
	mu      sync.RWMutex
	clients map[boardConn]*boardClient
}

// boardClient is one websocket member of a room. presence stays nil
// until the client announces itself with a presence_join frame.
type boardClient struct {
	conn     boardConn
	writeMu  sync.Mutex
	presence *wire.Presence
}

// NewHub creates a hub; bridge may be nil for single-instance deploys.
func NewHub(bridge *Bridge) *Hub {
	return &Hub{
		rooms:  make(map[string]*Room),
		bridge: bridge,
	}
}

// GetOrCreateRoom returns the room for key, creating it on first join.
func (h *Hub) GetOrCreateRoom(key string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[key]; exists {
		return room
	}
	room := &Room{
		Key:     key,
		hub:     h,
		clients: make(map[boardConn]*boardClient),
	}
	h.rooms[key] = room
	log.Printf("[Hub] Created room: %s", key)
	return room
}

// RemoveRoomIfEmpty drops a room once its last client is gone.
func (h *Hub) RemoveRoomIfEmpty(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[key]
	if !exists {
		return
	}
	room.mu.RLock()
	empty := len(room.clients) == 0
	room.mu.RUnlock()
	if empty {
		delete(h.rooms, key)
		log.Printf("[Hub] Removed room: %s", key)
	}
}

func (h *Hub) room(key string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[key]
}

// RunBridge pumps frames published by other relay instances into local
// rooms. Blocks until ctx is done; no-op without a bridge.
func (h *Hub) RunBridge(ctx context.Context) {
	if h.bridge == nil {
		return
	}
	h.bridge.Run(ctx, func(roomKey string, payload []byte) {
		if room := h.room(roomKey); room != nil {
			room.broadcastRaw(payload, nil)
		}
	})
}

// HandleBoard is the websocket handler for one board connection. Runs
// the read loop until the client disconnects.
func (h *Hub) HandleBoard(c *websocket.Conn) {
	roomKey := c.Params("room")
	if roomKey == "" {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"missing room"}`))
		c.Close()
		return
	}

	room := h.GetOrCreateRoom(roomKey)
	client := room.Register(c)
	log.Printf("[Hub] Client connected: room=%s, total=%d", roomKey, room.Size())

	defer func() {
		room.Unregister(c)
		c.Close()
		h.RemoveRoomIfEmpty(roomKey)
		log.Printf("[Hub] Client disconnected: room=%s, remaining=%d", roomKey, room.Size())
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		room.HandleFrame(client, raw)
	}
}

// Register adds a connection to the room.
func (r *Room) Register(conn boardConn) *boardClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	client := &boardClient{conn: conn}
	r.clients[conn] = client
	return client
}

// Unregister removes a connection. A client that had announced presence
// gets a presence_leave emitted on its behalf, locally and across the
// bridge.
func (r *Room) Unregister(conn boardConn) {
	r.mu.Lock()
	client, exists := r.clients[conn]
	if exists {
		delete(r.clients, conn)
	}
	r.mu.Unlock()

	if !exists || client.presence == nil {
		return
	}

	leave, err := wire.New(wire.TypePresenceLeave, client.presence.ID, *client.presence)
	if err != nil {
		return
	}
	raw, err := leave.Encode()
	if err != nil {
		return
	}
	r.broadcastRaw(raw, nil)
	r.bridgePublish(raw)
	r.bridgeUntrack(client.presence.ID)
}

// Size reports the current member count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// HandleFrame routes one incoming frame. Malformed frames are dropped;
// a bad envelope from one client must never break the room.
func (r *Room) HandleFrame(client *boardClient, raw []byte) {
	msg, err := wire.Decode(raw)
	if err != nil {
		log.Printf("[Room %s] Dropping malformed frame: %v", r.Key, err)
		return
	}

	switch msg.Type {
	case wire.TypePresenceJoin:
		r.track(client, msg, raw)
	case wire.TypePresenceLeave:
		// Leave is emitted by the relay on disconnect; a client-sent
		// leave is forwarded as-is.
		r.relay(client, raw)
	default:
		r.relay(client, raw)
	}
}

// track records the client's presence, tells the rest of the room, and
// replays the existing roster to the joiner so late arrivals see who is
// already there.
func (r *Room) track(client *boardClient, msg wire.Message, raw []byte) {
	var p wire.Presence
	if err := msg.DecodeData(&p); err != nil {
		log.Printf("[Room %s] Dropping malformed presence: %v", r.Key, err)
		return
	}
	if p.ID == "" {
		p.ID = msg.AuthorID
	}

	r.mu.Lock()
	client.presence = &p
	r.mu.Unlock()

	r.broadcastRaw(raw, client.conn)
	r.bridgePublish(raw)
	r.bridgeTrack(p)

	for _, peer := range r.roster(p.ID) {
		join, err := wire.New(wire.TypePresenceJoin, peer.ID, peer)
		if err != nil {
			continue
		}
		if rawJoin, err := join.Encode(); err == nil {
			r.send(client, rawJoin)
		}
	}

	log.Printf("[Room %s] Tracked presence: %s (%s), total=%d", r.Key, p.ID, p.DisplayName, r.Size())
}

// relay forwards a frame to every other member and across the bridge.
func (r *Room) relay(from *boardClient, raw []byte) {
	r.broadcastRaw(raw, from.conn)
	r.bridgePublish(raw)
}

// broadcastRaw writes a frame to every member except the excluded
// connection. except == nil sends to everyone.
func (r *Room) broadcastRaw(raw []byte, except boardConn) {
	r.mu.RLock()
	members := make([]*boardClient, 0, len(r.clients))
	for conn, client := range r.clients {
		if conn == except {
			continue
		}
		members = append(members, client)
	}
	r.mu.RUnlock()

	for _, member := range members {
		r.send(member, raw)
	}
}

func (r *Room) send(client *boardClient, raw []byte) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	if err := client.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		log.Printf("[Room %s] Failed to send to client: %v", r.Key, err)
	}
}

// roster collects tracked members, merging the bridge's view so a
// joiner also learns about peers on other relay instances. exclude
// filters out the joiner's own ID.
func (r *Room) roster(exclude string) []wire.Presence {
	r.mu.RLock()
	seen := make(map[string]bool, len(r.clients))
	out := make([]wire.Presence, 0, len(r.clients))
	for _, client := range r.clients {
		if client.presence == nil || client.presence.ID == exclude {
			continue
		}
		seen[client.presence.ID] = true
		out = append(out, *client.presence)
	}
	r.mu.RUnlock()

	if r.hub.bridge != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		remote, err := r.hub.bridge.Roster(ctx, r.Key)
		if err != nil {
			log.Printf("[Room %s] Bridge roster lookup failed: %v", r.Key, err)
			return out
		}
		for _, p := range remote {
			if p.ID == exclude || seen[p.ID] {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) bridgePublish(raw []byte) {
	if r.hub.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.hub.bridge.Publish(ctx, r.Key, raw); err != nil {
		log.Printf("[Room %s] Bridge publish failed: %v", r.Key, err)
	}
}

func (r *Room) bridgeTrack(p wire.Presence) {
	if r.hub.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.hub.bridge.TrackPresence(ctx, r.Key, p); err != nil {
		log.Printf("[Room %s] Bridge presence track failed: %v", r.Key, err)
	}
}

func (r *Room) bridgeUntrack(id string) {
	if r.hub.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.hub.bridge.UntrackPresence(ctx, r.Key, id); err != nil {
		log.Printf("[Room %s] Bridge presence untrack failed: %v", r.Key, err)
	}
}
