package task

import (
	"context"
	"fmt"
	"time"
)

// Request is everything a handler may read.
type Request struct {
	// CommandID correlates log lines for a single command.
	CommandID string
	User      UserID
	Text      string
	Aux       map[string]string
	Context   UserContext
}

// Handler executes the commands of one intent.
type Handler interface {
	// Intent is the dispatch key the handler is registered under.
	Intent() Intent

	// Execute runs the command. Returned errors are converted into an error
	// result by the orchestrator; they never escape it.
	Execute(ctx context.Context, req Request) (Payload, error)
}

// Learner is implemented by handlers that want something from their own
// payloads folded into the user's persisted preferences. The returned keys
// are stored under the handler's intent. A nil or empty map stores nothing.
type Learner interface {
	Learn(p Payload) map[string]any
}

// Entry is one dispatch table row.
type Entry struct {
	Handler Handler
	// Timeout bounds Execute. Zero means the table default.
	Timeout time.Duration
}

// Table maps each intent to its handler. It is built once and never
// mutated; lookups of absent intents return ErrUnknownIntent.
type Table struct {
	entries map[Intent]Entry
}

// NewTable builds a dispatch table. Every handler must report a valid,
// distinct intent.
func NewTable(defaultTimeout time.Duration, entries ...Entry) (*Table, error) {
	if defaultTimeout <= 0 {
		return nil, fmt.Errorf("dispatch table: default timeout must be positive, got %s", defaultTimeout)
	}
	t := &Table{entries: make(map[Intent]Entry, len(entries))}
	for _, e := range entries {
		if e.Handler == nil {
			return nil, fmt.Errorf("dispatch table: nil handler")
		}
		intent := e.Handler.Intent()
		if !intent.Valid() {
			return nil, fmt.Errorf("dispatch table: handler reports invalid intent %q", intent)
		}
		if _, dup := t.entries[intent]; dup {
			return nil, fmt.Errorf("dispatch table: duplicate handler for %s", intent)
		}
		if e.Timeout <= 0 {
			e.Timeout = defaultTimeout
		}
		t.entries[intent] = e
	}
	return t, nil
}

// Lookup returns the entry for intent.
func (t *Table) Lookup(intent Intent) (Entry, error) {
	e, ok := t.entries[intent]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownIntent, intent)
	}
	return e, nil
}

// Intents lists the registered intents in closed-set order.
func (t *Table) Intents() []Intent {
	out := make([]Intent, 0, len(t.entries))
	for _, i := range intents {
		if _, ok := t.entries[i]; ok {
			out = append(out, i)
		}
	}
	return out
}

// Learners returns the registered handlers that implement Learner.
func (t *Table) Learners() map[Intent]Learner {
	out := make(map[Intent]Learner)
	for intent, e := range t.entries {
		if l, ok := e.Handler.(Learner); ok {
			out[intent] = l
		}
	}
	return out
}
