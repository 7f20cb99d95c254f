package canvas

// Pure state transitions. Every function takes a snapshot and returns a
// new one; the input is never modified. Local and remote code paths both
// go through these, so they cannot diverge in behavior.

// AddStroke appends the stroke and records an add operation. Clears the
// redo log (a new action discards the old future). No-ops:
//   - a stroke with fewer than 2 points (a tap, never committed)
//   - a stroke whose ID is already present (makes remote re-delivery
//     of the same stroke_end idempotent)
func AddStroke(s State, stroke Stroke) State {
	if len(stroke.Points) < 2 {
		return s
	}
	if s.HasStroke(stroke.ID) {
		return s
	}
	op := Operation{
		Kind:      OpAdd,
		Stroke:    &stroke,
		AuthorID:  stroke.AuthorID,
		Timestamp: stroke.CreatedAt,
	}
	return State{
		Strokes: appendStroke(s.Strokes, stroke),
		UndoLog: appendOp(s.UndoLog, op),
		RedoLog: nil,
	}
}

// Undo removes the effect of the most recent history entry, regardless of
// author. Undo on empty history is a defined no-op, not a failure. The
// popped operation moves to the redo log carrying the removed stroke and
// keeping its original author and timestamp, so a following Redo restores
// the snapshot exactly.
func Undo(s State) State {
	n := len(s.UndoLog)
	if n == 0 {
		return s
	}
	last := s.UndoLog[n-1]

	var strokes []Stroke
	if last.Kind == OpAdd && last.Stroke != nil {
		strokes = removeStroke(s.Strokes, last.Stroke.ID)
	} else {
		strokes = copyStrokes(s.Strokes)
	}

	undone := Operation{
		Kind:      OpUndo,
		Stroke:    last.Stroke,
		AuthorID:  last.AuthorID,
		Timestamp: last.Timestamp,
	}
	return State{
		Strokes: strokes,
		UndoLog: copyOps(s.UndoLog[:n-1]),
		RedoLog: appendOp(s.RedoLog, undone),
	}
}

// Redo reinstates the most recently undone entry. No-op on an empty redo
// log. The restored add keeps the original author and timestamp, which
// gives the inverse law Redo(Undo(s)) == s for any s with history.
func Redo(s State) State {
	n := len(s.RedoLog)
	if n == 0 {
		return s
	}
	last := s.RedoLog[n-1]

	strokes := copyStrokes(s.Strokes)
	if last.Stroke != nil && !s.HasStroke(last.Stroke.ID) {
		strokes = append(strokes, *last.Stroke)
	}

	restored := Operation{
		Kind:      OpAdd,
		Stroke:    last.Stroke,
		AuthorID:  last.AuthorID,
		Timestamp: last.Timestamp,
	}
	return State{
		Strokes: strokes,
		UndoLog: appendOp(s.UndoLog, restored),
		RedoLog: copyOps(s.RedoLog[:n-1]),
	}
}

// Clear returns the empty canvas. This is a destructive reset: clear is
// not itself a history entry and cannot be undone. Known limitation,
// preserved as observable behavior.
func Clear() State {
	return State{}
}

// Copy helpers normalize empty slices to nil so that snapshots produced
// along different transition paths compare equal.

func copyStrokes(in []Stroke) []Stroke {
	if len(in) == 0 {
		return nil
	}
	out := make([]Stroke, len(in))
	copy(out, in)
	return out
}

func copyOps(in []Operation) []Operation {
	if len(in) == 0 {
		return nil
	}
	out := make([]Operation, len(in))
	copy(out, in)
	return out
}

func appendStroke(in []Stroke, s Stroke) []Stroke {
	out := make([]Stroke, len(in), len(in)+1)
	copy(out, in)
	return append(out, s)
}

func appendOp(in []Operation, op Operation) []Operation {
	out := make([]Operation, len(in), len(in)+1)
	copy(out, in)
	return append(out, op)
}

func removeStroke(in []Stroke, id string) []Stroke {
	out := make([]Stroke, 0, len(in))
	for _, st := range in {
		if st.ID == id {
			continue
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
