package wire

import (
	"encoding/json"
	"fmt"

	"github.com/supramm/canvas-connect/internal/canvas"
)

// Type enumerates every message kind that travels between clients. The
// seven drawing kinds form the application protocol; the two presence
// kinds are surfaced by the transport's membership channel and never
// reach the canvas engine.
type Type string

const (
	TypeStrokeStart   Type = "stroke_start"
	TypeStrokeUpdate  Type = "stroke_update"
	TypeStrokeEnd     Type = "stroke_end"
	TypeCursorMove    Type = "cursor_move"
	TypeUndo          Type = "undo"
	TypeRedo          Type = "redo"
	TypeClear         Type = "clear"
	TypePresenceJoin  Type = "presence_join"
	TypePresenceLeave Type = "presence_leave"
)

// Message is the JSON envelope shared by all nine kinds. Data is absent
// for the history kinds (undo/redo/clear): the receiving side re-derives
// the result from its own local state.
type Message struct {
	Type      Type            `json:"type"`
	AuthorID  string          `json:"authorId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"` // ms epoch
}

// StrokeStart announces a stroke on pointer-down, before the full stroke
// is known. Presentation hint only: receivers may render a live preview
// but must not commit anything until stroke_end.
type StrokeStart struct {
	ID     string         `json:"id"`
	Tool   canvas.Tool    `json:"tool"`
	Color  string         `json:"color"`
	Width  float64        `json:"width"`
	Points []canvas.Point `json:"points"`
}

// StrokeUpdate carries only the points added since the previous update,
// to bound message size. Presentation hint only.
type StrokeUpdate struct {
	ID     string         `json:"id"`
	Points []canvas.Point `json:"points"`
}

// CursorMove is sent on every pointer move, drawing or not.
type CursorMove struct {
	Position  canvas.Point `json:"position"`
	IsDrawing bool         `json:"isDrawing"`
}

// Presence describes one room member. Carried by the presence kinds and
// by the transport's Track call.
type Presence struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

// Known reports whether t is one of the nine wire kinds.
func Known(t Type) bool {
	switch t {
	case TypeStrokeStart, TypeStrokeUpdate, TypeStrokeEnd, TypeCursorMove,
		TypeUndo, TypeRedo, TypeClear, TypePresenceJoin, TypePresenceLeave:
		return true
	}
	return false
}

// New builds an envelope with the current timestamp. payload may be nil
// for the history kinds.
func New(t Type, authorID string, payload any) (Message, error) {
	m := Message{
		Type:      t,
		AuthorID:  authorID,
		Timestamp: canvas.NowMillis(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		m.Data = data
	}
	return m, nil
}

// Decode parses one envelope off the wire. Unknown types and missing
// author IDs are errors; callers drop them silently rather than crash
// the session.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !Known(m.Type) {
		return Message{}, fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.AuthorID == "" {
		return Message{}, fmt.Errorf("message %s missing authorId", m.Type)
	}
	return m, nil
}

// DecodeData unmarshals the payload into v.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %s has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Encode serializes the envelope for the transport.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
