package canvas

import (
	"log"
	"sync"
)

// Engine owns the single authoritative snapshot held by one client.
// Local actions and remote operations route through the same pure
// transitions, so the two code paths cannot diverge. There is exactly
// one canvas per engine and one engine per session; multiple sessions
// (tests included) run independent engines concurrently.
type Engine struct {
	mu    sync.RWMutex
	state State
}

// NewEngine starts from the empty canvas.
func NewEngine() *Engine {
	return &Engine{}
}

// Apply executes an action originated by this client and returns the new
// snapshot.
func (e *Engine) Apply(op Operation) State {
	return e.apply(op)
}

// ApplyRemote executes an operation that arrived from the network.
// Operations are applied in local arrival order; a duplicate add (same
// stroke ID) is absorbed as a no-op.
func (e *Engine) ApplyRemote(op Operation) State {
	return e.apply(op)
}

func (e *Engine) apply(op Operation) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch op.Kind {
	case OpAdd:
		if op.Stroke == nil {
			return e.state
		}
		e.state = AddStroke(e.state, *op.Stroke)
	case OpUndo:
		e.state = Undo(e.state)
	case OpRedo:
		e.state = Redo(e.state)
	case OpClear:
		e.state = Clear()
	default:
		log.Printf("[Engine] Unknown operation kind %q ignored", op.Kind)
	}
	return e.state
}

// Snapshot returns the current state. Snapshots are values; the caller
// may keep them indefinitely.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}
