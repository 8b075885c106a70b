package replay

import (
	"log/slog"
	"sync"

	"github.com/NGWS-CD/forensic-final/internal/dom"
	"github.com/NGWS-CD/forensic-final/internal/schema"
)

// LogDispatcher is a Dispatcher that records every injection to the log and
// keeps an in-memory trace. It backs review-mode replays where no live page
// is wired up.
type LogDispatcher struct {
	logger *slog.Logger

	mu    sync.Mutex
	trace []DispatchedEvent
}

// DispatchedEvent is one entry in the dispatch trace.
type DispatchedEvent struct {
	Type     schema.EventType
	Selector string
	TextOp   *TextOp
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// DispatchEvent logs one synthetic interaction.
func (d *LogDispatcher) DispatchEvent(target dom.Element, ev *schema.Event) error {
	selector := ev.Target
	if target != nil {
		selector = dom.Resolve(target)
	}

	d.mu.Lock()
	d.trace = append(d.trace, DispatchedEvent{Type: ev.Type, Selector: selector})
	d.mu.Unlock()

	d.logger.Debug("dispatch",
		"type", ev.Type,
		"selector", selector,
		"ts", ev.TimestampRelative)
	return nil
}

// ApplyText logs one text operation.
func (d *LogDispatcher) ApplyText(target dom.Element, op TextOp) error {
	selector := ""
	if target != nil {
		selector = dom.Resolve(target)
	}

	d.mu.Lock()
	entry := op
	d.trace = append(d.trace, DispatchedEvent{Selector: selector, TextOp: &entry})
	d.mu.Unlock()

	d.logger.Debug("text op", "kind", op.Kind, "selector", selector)
	return nil
}

// Trace returns the dispatch trace so far.
func (d *LogDispatcher) Trace() []DispatchedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DispatchedEvent, len(d.trace))
	copy(out, d.trace)
	return out
}
