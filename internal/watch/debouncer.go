package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Op is a coalesced file operation.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one debounced file event.
type Event struct {
	// Path is repo-relative.
	Path string
	Op   Op
}

// Debouncer coalesces rapid file events per path so a save-storm turns
// into one incremental pass. Coalescing rules:
//   - CREATE + MODIFY = CREATE
//   - CREATE + DELETE = nothing
//   - MODIFY + DELETE = DELETE
//   - DELETE + CREATE = MODIFY
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*pendingEvent
	output  chan []Event
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Op
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []Event, 8),
	}
}

// Add enqueues an event, coalescing with any pending event on the same
// path, and (re)arms the flush timer.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, drop := coalesce(existing.firstOp, event)
		if drop {
			delete(d.pending, event.Path)
		} else {
			existing.event = merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into a pending one. drop means the pair
// annihilated (a file created and deleted inside one window).
func coalesce(firstOp Op, next Event) (Event, bool) {
	switch {
	case firstOp == OpCreate && next.Op == OpModify:
		return Event{Path: next.Path, Op: OpCreate}, false
	case firstOp == OpCreate && next.Op == OpDelete:
		return Event{}, true
	case firstOp == OpDelete && next.Op == OpCreate:
		return Event{Path: next.Path, Op: OpModify}, false
	default:
		return next, false
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output delivers debounced event batches.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
