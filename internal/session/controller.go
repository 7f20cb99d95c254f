package session

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/supramm/canvas-connect/internal/canvas"
	"github.com/supramm/canvas-connect/internal/realtime"
	"github.com/supramm/canvas-connect/internal/wire"
)

// DefaultMinPointDistance is the minimum gap, in surface pixels, between
// two recorded points of one stroke. Bounds point density on fast drags.
const DefaultMinPointDistance = 4.0

// Settings are this client's brush choices. Local only, never
// synchronized; every client draws with its own settings.
type Settings struct {
	Tool  canvas.Tool
	Color string
	Width float64
}

// DefaultSettings is a thin dark brush.
func DefaultSettings() Settings {
	return Settings{Tool: canvas.ToolBrush, Color: "#1d1d1f", Width: 3}
}

// User is one remote room member. Ephemeral: rebuilt from presence and
// cursor events, never part of canvas state, never persisted.
type User struct {
	ID          string
	DisplayName string
	Color       string
	Cursor      *canvas.Point
	IsDrawing   bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithMinPointDistance overrides the point density threshold.
func WithMinPointDistance(px float64) Option {
	return func(c *Controller) { c.minDist = px }
}

// WithSettings sets the initial brush.
func WithSettings(s Settings) Option {
	return func(c *Controller) { c.settings = s }
}

// Controller turns raw pointer input into stroke lifecycle events. Two
// states: idle and drawing; drawing holds the in-progress stroke. Every
// local action is applied to the engine before its message is emitted,
// so the initiating client is always at least as up to date as its own
// input and network latency never blocks drawing.
//
// Pointer methods are expected from a single input goroutine; remote
// callbacks arrive on the transport goroutine and are serialized with an
// internal mutex.
type Controller struct {
	clientID string
	engine   *canvas.Engine
	channel  *realtime.Channel
	minDist  float64

	mu       sync.Mutex
	settings Settings
	drawing  bool
	current  *canvas.Stroke
	users    map[string]*User
	previews map[string]*canvas.Stroke
}

// NewController wires an engine and a transport into one drawing session.
// The controller owns the transport exclusively until Leave.
func NewController(clientID string, engine *canvas.Engine, t realtime.Transport, opts ...Option) *Controller {
	c := &Controller{
		clientID: clientID,
		engine:   engine,
		minDist:  DefaultMinPointDistance,
		settings: DefaultSettings(),
		users:    make(map[string]*User),
		previews: make(map[string]*canvas.Stroke),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.channel = realtime.NewChannel(clientID, t, realtime.Handlers{
		OnOperation:    c.onRemoteOperation,
		OnStrokeStart:  c.onRemoteStrokeStart,
		OnStrokeUpdate: c.onRemoteStrokeUpdate,
		OnCursor:       c.onRemoteCursor,
		OnJoin:         c.onPeerJoin,
		OnLeave:        c.onPeerLeave,
	})
	return c
}

// Join subscribes to the room and announces presence. Drawing works
// whether or not the join succeeds.
func (c *Controller) Join(ctx context.Context, displayName, color string) error {
	return c.channel.Join(ctx, wire.Presence{
		ID:          c.clientID,
		DisplayName: displayName,
		Color:       color,
	})
}

// Leave tears down the channel. The session is done afterwards.
func (c *Controller) Leave() error {
	return c.channel.Close()
}

// PointerDown starts a stroke seeded with the current settings and the
// first point. Ignored while already drawing.
func (c *Controller) PointerDown(ctx context.Context, p canvas.Point) {
	c.mu.Lock()
	if c.drawing {
		c.mu.Unlock()
		return
	}
	stroke := &canvas.Stroke{
		ID:        canvas.NewStrokeID(),
		AuthorID:  c.clientID,
		Tool:      c.settings.Tool,
		Color:     c.settings.Color,
		Width:     c.settings.Width,
		Points:    []canvas.Point{p},
		CreatedAt: canvas.NowMillis(),
	}
	c.drawing = true
	c.current = stroke
	announce := *stroke
	c.mu.Unlock()

	c.channel.SendStrokeStart(ctx, announce)
}

// PointerMove records a point when it clears the density filter and
// always emits the cursor position, drawing or not.
func (c *Controller) PointerMove(ctx context.Context, p canvas.Point) {
	c.mu.Lock()
	drawing := c.drawing
	var strokeID string
	recorded := false
	if drawing && c.current != nil {
		last := c.current.Points[len(c.current.Points)-1]
		if dist(last, p) >= c.minDist {
			c.current.Points = append(c.current.Points, p)
			strokeID = c.current.ID
			recorded = true
		}
	}
	c.mu.Unlock()

	if recorded {
		c.channel.SendStrokeUpdate(ctx, strokeID, []canvas.Point{p})
	}
	c.channel.SendCursor(ctx, p, drawing)
}

// PointerUp finalizes the in-progress stroke. A stroke with fewer than
// two points is a tap and is discarded without committing; otherwise it
// is applied locally first and then put on the wire.
func (c *Controller) PointerUp(ctx context.Context) {
	c.mu.Lock()
	if !c.drawing || c.current == nil {
		c.drawing = false
		c.current = nil
		c.mu.Unlock()
		return
	}
	stroke := *c.current
	c.drawing = false
	c.current = nil
	c.mu.Unlock()

	if len(stroke.Points) < 2 {
		return
	}
	c.engine.Apply(canvas.Operation{
		Kind:      canvas.OpAdd,
		Stroke:    &stroke,
		AuthorID:  c.clientID,
		Timestamp: stroke.CreatedAt,
	})
	c.channel.SendStrokeEnd(ctx, stroke)
}

// PointerLeave is treated identically to pointer-up: finalize or
// discard. There is no cancel that drops a ≥2-point stroke.
func (c *Controller) PointerLeave(ctx context.Context) {
	c.PointerUp(ctx)
}

// Undo applies locally first, then notifies peers. Any client's undo
// removes the most recent stroke regardless of author.
func (c *Controller) Undo(ctx context.Context) {
	c.engine.Apply(canvas.Operation{Kind: canvas.OpUndo, AuthorID: c.clientID, Timestamp: canvas.NowMillis()})
	c.channel.SendUndo(ctx)
}

// Redo applies locally first, then notifies peers.
func (c *Controller) Redo(ctx context.Context) {
	c.engine.Apply(canvas.Operation{Kind: canvas.OpRedo, AuthorID: c.clientID, Timestamp: canvas.NowMillis()})
	c.channel.SendRedo(ctx)
}

// Clear resets the canvas for everyone. Not undoable.
func (c *Controller) Clear(ctx context.Context) {
	c.engine.Apply(canvas.Operation{Kind: canvas.OpClear, AuthorID: c.clientID, Timestamp: canvas.NowMillis()})
	c.channel.SendClear(ctx)
}

// SetSettings swaps the brush for subsequent strokes.
func (c *Controller) SetSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// Settings returns the current brush.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Snapshot returns the committed canvas state.
func (c *Controller) Snapshot() canvas.State {
	return c.engine.Snapshot()
}

// LocalPreview returns a copy of the local in-progress stroke for
// optimistic rendering, or nil when idle.
func (c *Controller) LocalPreview() *canvas.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	cp.Points = append([]canvas.Point(nil), c.current.Points...)
	return &cp
}

// Users returns the remote roster sorted by ID.
func (c *Controller) Users() []User {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]User, 0, len(c.users))
	for _, u := range c.users {
		cp := *u
		if u.Cursor != nil {
			pos := *u.Cursor
			cp.Cursor = &pos
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Previews returns copies of peers' in-progress strokes, for live
// rendering. These are hints; only stroke_end commits.
func (c *Controller) Previews() []canvas.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]canvas.Stroke, 0, len(c.previews))
	for _, pv := range c.previews {
		cp := *pv
		cp.Points = append([]canvas.Point(nil), pv.Points...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnState reports the sync channel's connection state.
func (c *Controller) ConnState() (realtime.ConnState, string) {
	return c.channel.State()
}

// Remote callbacks. The channel has already filtered self-echo and
// malformed payloads.

func (c *Controller) onRemoteOperation(op canvas.Operation) {
	c.engine.ApplyRemote(op)

	if op.Kind == canvas.OpAdd && op.Stroke != nil {
		c.mu.Lock()
		delete(c.previews, op.Stroke.AuthorID)
		c.mu.Unlock()
	}
}

func (c *Controller) onRemoteStrokeStart(authorID string, start wire.StrokeStart) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previews[authorID] = &canvas.Stroke{
		ID:       start.ID,
		AuthorID: authorID,
		Tool:     start.Tool,
		Color:    start.Color,
		Width:    start.Width,
		Points:   append([]canvas.Point(nil), start.Points...),
	}
	if u, ok := c.users[authorID]; ok {
		u.IsDrawing = true
	}
}

func (c *Controller) onRemoteStrokeUpdate(authorID string, update wire.StrokeUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pv, ok := c.previews[authorID]
	if !ok || pv.ID != update.ID {
		return // update for a stroke we never saw start; drop
	}
	pv.Points = append(pv.Points, update.Points...)
}

func (c *Controller) onRemoteCursor(authorID string, cursor wire.CursorMove) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[authorID]
	if !ok {
		// First contact through a cursor message creates the roster
		// entry; the descriptor fills in if a join event arrives later.
		u = &User{ID: authorID}
		c.users[authorID] = u
	}
	pos := cursor.Position
	u.Cursor = &pos
	u.IsDrawing = cursor.IsDrawing
}

func (c *Controller) onPeerJoin(peer wire.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[peer.ID]
	if !ok {
		u = &User{ID: peer.ID}
		c.users[peer.ID] = u
	}
	u.DisplayName = peer.DisplayName
	u.Color = peer.Color
}

func (c *Controller) onPeerLeave(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, peerID)
	delete(c.previews, peerID)
}

func dist(a, b canvas.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
