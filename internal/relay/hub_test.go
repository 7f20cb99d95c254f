package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supramm/canvas-connect/internal/wire"
)

// fakeConn records everything the room writes to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received(t *testing.T) []wire.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Message, 0, len(f.frames))
	for _, raw := range f.frames {
		msg, err := wire.Decode(raw)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func joinFrame(t *testing.T, id, name string) []byte {
	t.Helper()
	msg, err := wire.New(wire.TypePresenceJoin, id, wire.Presence{ID: id, DisplayName: name})
	require.NoError(t, err)
	raw, err := msg.Encode()
	require.NoError(t, err)
	return raw
}

func TestRelayForwardsToEveryoneButSender(t *testing.T) {
	hub := NewHub(nil)
	room := hub.GetOrCreateRoom("room-1")

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	ca := room.Register(a)
	room.Register(b)
	room.Register(c)

	msg, err := wire.New(wire.TypeUndo, "client-a", nil)
	require.NoError(t, err)
	raw, err := msg.Encode()
	require.NoError(t, err)
	room.HandleFrame(ca, raw)

	assert.Empty(t, a.received(t), "sender must not hear its own frame back")
	require.Len(t, b.received(t), 1)
	require.Len(t, c.received(t), 1)
	assert.Equal(t, wire.TypeUndo, b.received(t)[0].Type)
}

func TestJoinerReceivesExistingRoster(t *testing.T) {
	hub := NewHub(nil)
	room := hub.GetOrCreateRoom("room-1")

	a, b := &fakeConn{}, &fakeConn{}
	ca := room.Register(a)
	room.HandleFrame(ca, joinFrame(t, "client-a", "Ada"))

	cb := room.Register(b)
	room.HandleFrame(cb, joinFrame(t, "client-b", "Brett"))

	// A hears B's join.
	gotA := a.received(t)
	require.Len(t, gotA, 1)
	assert.Equal(t, wire.TypePresenceJoin, gotA[0].Type)
	assert.Equal(t, "client-b", gotA[0].AuthorID)

	// B gets the roster replay: A's presence, not its own.
	gotB := b.received(t)
	require.Len(t, gotB, 1)
	var peer wire.Presence
	require.NoError(t, gotB[0].DecodeData(&peer))
	assert.Equal(t, "client-a", peer.ID)
	assert.Equal(t, "Ada", peer.DisplayName)
}

func TestUnregisterEmitsLeaveForTrackedClient(t *testing.T) {
	hub := NewHub(nil)
	room := hub.GetOrCreateRoom("room-1")

	a, b := &fakeConn{}, &fakeConn{}
	ca := room.Register(a)
	room.HandleFrame(ca, joinFrame(t, "client-a", "Ada"))
	room.Register(b)

	room.Unregister(a)

	got := b.received(t)
	require.Len(t, got, 1)
	assert.Equal(t, wire.TypePresenceLeave, got[0].Type)
	assert.Equal(t, "client-a", got[0].AuthorID)
}

func TestUnregisterWithoutPresenceIsSilent(t *testing.T) {
	hub := NewHub(nil)
	room := hub.GetOrCreateRoom("room-1")

	a, b := &fakeConn{}, &fakeConn{}
	room.Register(a)
	room.Register(b)

	// A never announced itself, so B hears nothing.
	room.Unregister(a)
	assert.Empty(t, b.received(t))
}

func TestMalformedFrameDropped(t *testing.T) {
	hub := NewHub(nil)
	room := hub.GetOrCreateRoom("room-1")

	a, b := &fakeConn{}, &fakeConn{}
	ca := room.Register(a)
	room.Register(b)

	room.HandleFrame(ca, []byte("not json"))
	room.HandleFrame(ca, []byte(`{"type":"teleport","authorId":"client-a"}`))

	assert.Empty(t, b.received(t), "garbage never reaches other members")
	assert.Equal(t, 2, room.Size(), "room survives bad input")
}

func TestRemoveRoomIfEmpty(t *testing.T) {
	hub := NewHub(nil)
	room := hub.GetOrCreateRoom("room-1")

	a := &fakeConn{}
	room.Register(a)
	hub.RemoveRoomIfEmpty("room-1")
	assert.Same(t, room, hub.GetOrCreateRoom("room-1"), "occupied room stays")

	room.Unregister(a)
	hub.RemoveRoomIfEmpty("room-1")
	assert.NotSame(t, room, hub.GetOrCreateRoom("room-1"), "empty room is recreated fresh")
}
