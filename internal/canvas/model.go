package canvas

import (
	"time"

	"github.com/google/uuid"
)

// Tool selects how a stroke composites onto the surface.
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Point is a single position in surface coordinates. Pressure is optional
// and carries no meaning when absent.
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

// Stroke is one continuous drawn path. Immutable once constructed: the
// points slice must not be modified after the stroke has been committed
// or put on the wire.
type Stroke struct {
	ID        string  `json:"id"`
	AuthorID  string  `json:"authorId"`
	Tool      Tool    `json:"tool"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
	Points    []Point `json:"points"`
	CreatedAt int64   `json:"createdAt"` // ms epoch
}

// OpKind classifies one history entry.
type OpKind string

const (
	OpAdd   OpKind = "add"
	OpUndo  OpKind = "undo"
	OpRedo  OpKind = "redo"
	OpClear OpKind = "clear"
)

// Operation is one history entry. Stroke is present for add and for the
// stroke being restored by undo/redo.
type Operation struct {
	Kind      OpKind  `json:"kind"`
	Stroke    *Stroke `json:"stroke,omitempty"`
	AuthorID  string  `json:"authorId"`
	Timestamp int64   `json:"timestamp"` // ms epoch
}

// State is one immutable snapshot of the whole canvas: the committed
// strokes plus the global undo/redo logs. Transitions copy, never mutate,
// so callers may hold on to old snapshots for comparison or replay.
type State struct {
	Strokes []Stroke    `json:"strokes"`
	UndoLog []Operation `json:"undoLog"`
	RedoLog []Operation `json:"redoLog"`
}

// HasStroke reports whether a committed stroke with the given ID exists.
func (s State) HasStroke(id string) bool {
	for _, st := range s.Strokes {
		if st.ID == id {
			return true
		}
	}
	return false
}

// NewStrokeID returns a globally unique stroke ID. UUIDv7 combines a
// millisecond time prefix with random bits, so IDs from concurrent
// clients sort roughly by creation time and never collide in practice.
func NewStrokeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewClientID returns a fresh random identity for one drawing session.
func NewClientID() string {
	return uuid.NewString()
}

// NowMillis is the timestamp format used across the wire protocol.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
