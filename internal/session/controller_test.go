package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supramm/canvas-connect/internal/canvas"
	"github.com/supramm/canvas-connect/internal/session"
	"github.com/supramm/canvas-connect/internal/transport"
	"github.com/supramm/canvas-connect/internal/wire"
)

type client struct {
	id     string
	ctrl   *session.Controller
	engine *canvas.Engine
}

func joinClient(t *testing.T, broker *transport.Broker, room, id, name string, opts ...session.Option) *client {
	t.Helper()
	engine := canvas.NewEngine()
	ctrl := session.NewController(id, engine, broker.Join(room), opts...)
	require.NoError(t, ctrl.Join(context.Background(), name, "#336699"))
	return &client{id: id, ctrl: ctrl, engine: engine}
}

// draw runs a full pointer-down/move/up cycle through the controller.
func draw(ctx context.Context, c *client, points ...canvas.Point) {
	c.ctrl.PointerDown(ctx, points[0])
	for _, p := range points[1:] {
		c.ctrl.PointerMove(ctx, p)
	}
	c.ctrl.PointerUp(ctx)
}

func TestTwoClientsObserveEachOthersStrokes(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	a.ctrl.SetSettings(session.Settings{Tool: canvas.ToolBrush, Color: "#ff0000", Width: 2})
	draw(ctx, a, canvas.Point{X: 0, Y: 0}, canvas.Point{X: 10, Y: 0}, canvas.Point{X: 20, Y: 0})

	got := b.ctrl.Snapshot()
	require.Len(t, got.Strokes, 1)
	s1 := got.Strokes[0]
	assert.Equal(t, "client-a", s1.AuthorID)
	assert.Equal(t, "#ff0000", s1.Color)
	assert.Len(t, s1.Points, 3)
	assert.Equal(t, a.ctrl.Snapshot(), got, "both clients converge on the same snapshot")
}

func TestUndoRemovesMostRecentInLocalArrivalOrder(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	draw(ctx, a, canvas.Point{X: 0, Y: 0}, canvas.Point{X: 10, Y: 10})
	draw(ctx, b, canvas.Point{X: 50, Y: 50}, canvas.Point{X: 60, Y: 60})

	// A's local log recorded b's stroke last, so A's undo removes it —
	// on A and, after delivery, on B as well.
	a.ctrl.Undo(ctx)

	gotA := a.ctrl.Snapshot()
	require.Len(t, gotA.Strokes, 1)
	assert.Equal(t, "client-a", gotA.Strokes[0].AuthorID)
	assert.Equal(t, gotA, b.ctrl.Snapshot())
}

func TestPreviewMessagesNeverMutateCommittedState(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	// A raw peer hand-crafts previews that disagree with the final
	// stroke. Only stroke_end counts.
	peer := broker.Join("room-1")
	require.NoError(t, peer.Subscribe(func(wire.Message) {}, func(wire.Type, wire.Presence) {}))

	publish := func(typ wire.Type, payload any) {
		msg, err := wire.New(typ, "client-x", payload)
		require.NoError(t, err)
		require.NoError(t, peer.Publish(ctx, msg))
	}

	publish(wire.TypeStrokeStart, wire.StrokeStart{
		ID: "s1", Tool: canvas.ToolBrush, Color: "#000000", Width: 2,
		Points: []canvas.Point{{X: 999, Y: 999}},
	})
	publish(wire.TypeStrokeUpdate, wire.StrokeUpdate{ID: "s1", Points: []canvas.Point{{X: 998, Y: 998}}})
	publish(wire.TypeStrokeUpdate, wire.StrokeUpdate{ID: "s1", Points: []canvas.Point{{X: 997, Y: 997}}})

	assert.Empty(t, b.ctrl.Snapshot().Strokes, "previews are hints, never commits")
	require.Len(t, b.ctrl.Previews(), 1)

	final := canvas.Stroke{
		ID: "s1", AuthorID: "client-x", Tool: canvas.ToolBrush, Color: "#000000", Width: 2,
		Points: []canvas.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}},
	}
	publish(wire.TypeStrokeEnd, final)

	got := b.ctrl.Snapshot()
	require.Len(t, got.Strokes, 1)
	assert.Equal(t, final.Points, got.Strokes[0].Points,
		"committed stroke carries exactly the stroke_end points")
	assert.Empty(t, b.ctrl.Previews(), "preview cleared once the stroke commits")
}

func TestClearPropagatesAndIsNotUndoable(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	draw(ctx, a, canvas.Point{X: 0, Y: 0}, canvas.Point{X: 10, Y: 10})
	draw(ctx, b, canvas.Point{X: 5, Y: 5}, canvas.Point{X: 15, Y: 15})

	a.ctrl.Clear(ctx)

	for _, c := range []*client{a, b} {
		got := c.ctrl.Snapshot()
		assert.Empty(t, got.Strokes, c.id)
		assert.Empty(t, got.UndoLog, c.id)
		assert.Empty(t, got.RedoLog, c.id)
	}

	a.ctrl.Undo(ctx)
	b.ctrl.Undo(ctx)
	assert.Equal(t, canvas.State{}, a.ctrl.Snapshot())
	assert.Equal(t, canvas.State{}, b.ctrl.Snapshot())
}

func TestTapIsDiscarded(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	a.ctrl.PointerDown(ctx, canvas.Point{X: 5, Y: 5})
	a.ctrl.PointerUp(ctx)

	assert.Empty(t, a.ctrl.Snapshot().Strokes, "a click with no drag never commits")
	assert.Empty(t, b.ctrl.Snapshot().Strokes)
}

func TestMinDistanceFilterBoundsPointDensity(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada",
		session.WithMinPointDistance(10))

	a.ctrl.PointerDown(ctx, canvas.Point{X: 0, Y: 0})
	a.ctrl.PointerMove(ctx, canvas.Point{X: 3, Y: 0})  // too close, dropped
	a.ctrl.PointerMove(ctx, canvas.Point{X: 12, Y: 0}) // recorded
	a.ctrl.PointerMove(ctx, canvas.Point{X: 14, Y: 0}) // too close, dropped
	a.ctrl.PointerMove(ctx, canvas.Point{X: 30, Y: 0}) // recorded
	a.ctrl.PointerUp(ctx)

	got := a.ctrl.Snapshot()
	require.Len(t, got.Strokes, 1)
	assert.Equal(t, []canvas.Point{{X: 0, Y: 0}, {X: 12, Y: 0}, {X: 30, Y: 0}}, got.Strokes[0].Points)
}

func TestPointerLeaveFinalizesLikePointerUp(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")

	a.ctrl.PointerDown(ctx, canvas.Point{X: 0, Y: 0})
	a.ctrl.PointerMove(ctx, canvas.Point{X: 20, Y: 20})
	a.ctrl.PointerLeave(ctx)

	assert.Len(t, a.ctrl.Snapshot().Strokes, 1)
	assert.Nil(t, a.ctrl.LocalPreview())
}

func TestLocalDrawingWorksWithoutJoin(t *testing.T) {
	// Optimistic rendering: the engine moves on its own input even when
	// the channel never connected.
	ctx := context.Background()
	broker := transport.NewBroker()
	engine := canvas.NewEngine()
	ctrl := session.NewController("loner", engine, broker.Join("room-1"))

	ctrl.PointerDown(ctx, canvas.Point{X: 0, Y: 0})
	ctrl.PointerMove(ctx, canvas.Point{X: 10, Y: 10})
	ctrl.PointerUp(ctx)

	assert.Len(t, engine.Snapshot().Strokes, 1)
}

func TestRosterFollowsPresenceAndCursors(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	// Presence from Join is already visible on both sides.
	usersA := a.ctrl.Users()
	require.Len(t, usersA, 1)
	assert.Equal(t, "client-b", usersA[0].ID)
	assert.Equal(t, "Brett", usersA[0].DisplayName)

	b.ctrl.PointerMove(ctx, canvas.Point{X: 42, Y: 7})
	usersA = a.ctrl.Users()
	require.NotNil(t, usersA[0].Cursor)
	assert.Equal(t, canvas.Point{X: 42, Y: 7}, *usersA[0].Cursor)
	assert.False(t, usersA[0].IsDrawing)

	b.ctrl.PointerDown(ctx, canvas.Point{X: 42, Y: 7})
	b.ctrl.PointerMove(ctx, canvas.Point{X: 60, Y: 7})
	usersA = a.ctrl.Users()
	assert.True(t, usersA[0].IsDrawing)

	require.NoError(t, b.ctrl.Leave())
	assert.Empty(t, a.ctrl.Users(), "leave removes the roster entry")
}

func TestCursorFromUnknownPeerCreatesRosterEntry(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")

	peer := broker.Join("room-1")
	require.NoError(t, peer.Subscribe(func(wire.Message) {}, func(wire.Type, wire.Presence) {}))
	msg, err := wire.New(wire.TypeCursorMove, "ghost", wire.CursorMove{Position: canvas.Point{X: 1, Y: 2}})
	require.NoError(t, err)
	require.NoError(t, peer.Publish(ctx, msg))

	users := a.ctrl.Users()
	require.Len(t, users, 1)
	assert.Equal(t, "ghost", users[0].ID)
}

func TestRedoSurvivesRoundTripBetweenClients(t *testing.T) {
	ctx := context.Background()
	broker := transport.NewBroker()
	a := joinClient(t, broker, "room-1", "client-a", "Ada")
	b := joinClient(t, broker, "room-1", "client-b", "Brett")

	draw(ctx, a, canvas.Point{X: 0, Y: 0}, canvas.Point{X: 10, Y: 10})
	before := b.ctrl.Snapshot()

	b.ctrl.Undo(ctx)
	assert.Empty(t, b.ctrl.Snapshot().Strokes)
	assert.Empty(t, a.ctrl.Snapshot().Strokes)

	b.ctrl.Redo(ctx)
	assert.Equal(t, before, b.ctrl.Snapshot())
	assert.Equal(t, before, a.ctrl.Snapshot())
}
