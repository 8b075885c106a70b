// Package replay reconstructs a recorded session's timeline and
// re-dispatches synthetic interactions against a live page. The engine is a
// timer-driven state machine; dispatch strictly follows stored order.
package replay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NGWS-CD/forensic-final/internal/dom"
	"github.com/NGWS-CD/forensic-final/internal/schema"
)

// State is the engine's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateLoaded    State = "loaded"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

var (
	// ErrNotLoaded is returned when replay is started with no session.
	ErrNotLoaded = errors.New("no session loaded")
	// ErrBadState is returned for operations invalid in the current state.
	ErrBadState = errors.New("operation not valid in current state")
)

// Dispatcher injects synthetic interactions through the host's normal
// dispatch path, so page listeners observe them like real interactions.
// Target is nil for window-level events.
type Dispatcher interface {
	DispatchEvent(target dom.Element, ev *schema.Event) error
	// ApplyText applies one keystroke-level text operation to the target.
	ApplyText(target dom.Element, op TextOp) error
}

// Progress describes the engine's position after each dispatch or state
// change.
type Progress struct {
	State      State
	Index      int
	Total      int
	Dispatched uint64
	Event      *schema.Event
}

// Engine replays a loaded session. It owns its cursor exclusively and only
// reads the loaded session.
type Engine struct {
	doc        dom.Document
	dispatcher Dispatcher
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	session    *schema.Session
	idx        int
	speed      float64
	timer      *time.Timer
	gen        uint64 // invalidates scheduled dispatches on state changes
	dispatched uint64
	onProgress func(Progress)
}

// NewEngine creates an idle replay engine dispatching against doc.
func NewEngine(doc dom.Document, dispatcher Dispatcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		doc:        doc,
		dispatcher: dispatcher,
		logger:     logger,
		state:      StateIdle,
		speed:      1.0,
	}
}

// OnProgress registers a callback invoked after every dispatched event and
// on completion. The callback runs on the scheduler path; keep it cheap.
func (e *Engine) OnProgress(fn func(Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onProgress = fn
}

// LoadSession parses and validates a session export document. On failure
// the engine stays (or returns to) Idle with no session.
func (e *Engine) LoadSession(data []byte) error {
	session, err := schema.ParseSession(data)
	if err != nil {
		e.mu.Lock()
		if e.state == StateIdle {
			e.session = nil
		}
		e.mu.Unlock()
		return fmt.Errorf("invalid session data: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTimerLocked()
	e.session = session
	e.idx = 0
	e.dispatched = 0
	e.state = StateLoaded
	e.logger.Info("session loaded",
		"session_id", session.SessionID, "events", len(session.Events))
	return nil
}

// StartReplay begins dispatching from the current index. Valid from Loaded
// or Stopped. A speed of 0 keeps the previous multiplier.
func (e *Engine) StartReplay(speed float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return ErrNotLoaded
	}
	if e.state != StateLoaded && e.state != StateStopped {
		return fmt.Errorf("%w: %s", ErrBadState, e.state)
	}
	if speed > 0 {
		e.speed = speed
	}

	e.state = StatePlaying
	e.logger.Info("replay started",
		"session_id", e.session.SessionID,
		"events", len(e.session.Events),
		"speed", e.speed)

	// First dispatch happens immediately; subsequent ones follow the
	// recorded inter-event gaps.
	e.scheduleLocked(0)
	return nil
}

// TogglePause pauses a playing replay, or resumes a paused one. Resuming
// dispatches the next event immediately and re-arms the recorded gaps from
// there; it does not compensate for wall-clock time spent paused.
func (e *Engine) TogglePause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		e.cancelTimerLocked()
		e.state = StatePaused
		e.logger.Info("replay paused", "index", e.idx)
		return nil
	case StatePaused:
		e.state = StatePlaying
		e.logger.Info("replay resumed", "index", e.idx)
		e.scheduleLocked(0)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrBadState, e.state)
	}
}

// JumpToEvent moves the cursor to index, clamped to the event range. Does
// not auto-resume: a playing replay is paused at the new position.
func (e *Engine) JumpToEvent(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return ErrNotLoaded
	}

	if index < 0 {
		index = 0
	}
	if n := len(e.session.Events); index >= n && n > 0 {
		index = n - 1
	}

	e.cancelTimerLocked()
	e.idx = index
	if e.state == StatePlaying {
		e.state = StatePaused
	}
	e.logger.Info("cursor moved", "index", e.idx)
	return nil
}

// JumpToProgress moves the cursor to a percentage of the session.
func (e *Engine) JumpToProgress(percent float64) error {
	e.mu.Lock()
	n := 0
	if e.session != nil {
		n = len(e.session.Events)
	}
	e.mu.Unlock()

	if n == 0 {
		return ErrNotLoaded
	}

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return e.JumpToEvent(int(float64(n) * percent / 100))
}

// StopReplay cancels any pending dispatch and resets the cursor.
func (e *Engine) StopReplay() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelTimerLocked()
	e.idx = 0
	if e.state != StateIdle {
		e.state = StateStopped
	}
	e.logger.Info("replay stopped")
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentIndex returns the cursor position.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx
}

// Dispatched returns the number of synthetic interactions dispatched since
// the session was loaded.
func (e *Engine) Dispatched() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatched
}

// scheduleLocked arms the dispatch of the event at the current index after
// delay. Caller must hold the lock.
func (e *Engine) scheduleLocked(delay time.Duration) {
	e.cancelTimerLocked()
	gen := e.gen
	e.timer = time.AfterFunc(delay, func() {
		e.step(gen)
	})
}

// cancelTimerLocked stops the pending timer and invalidates any dispatch
// already in flight. Caller must hold the lock.
func (e *Engine) cancelTimerLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// step dispatches the event at the cursor and schedules the next one.
func (e *Engine) step(gen uint64) {
	e.mu.Lock()

	if e.gen != gen || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}

	events := e.session.Events
	fn := e.onProgress
	var notices []Progress

	if e.idx < len(events) {
		ev := events[e.idx]
		if e.dispatchLocked(&ev) {
			e.dispatched++
		}
		e.idx++
		notices = append(notices, Progress{
			State:      e.state,
			Index:      e.idx,
			Total:      len(events),
			Dispatched: e.dispatched,
			Event:      &ev,
		})
	}

	if e.idx >= len(events) {
		e.cancelTimerLocked()
		e.state = StateCompleted
		notices = append(notices, Progress{
			State:      StateCompleted,
			Index:      e.idx,
			Total:      len(events),
			Dispatched: e.dispatched,
		})
		e.logger.Info("replay completed",
			"session_id", e.session.SessionID, "dispatched", e.dispatched)
	} else {
		prev := events[e.idx-1]
		next := events[e.idx]
		gap := time.Duration(next.TimestampRelative-prev.TimestampRelative) * time.Millisecond
		if gap < 0 {
			gap = 0
		}
		e.scheduleLocked(time.Duration(float64(gap) / e.speed))
	}
	e.mu.Unlock()

	if fn != nil {
		for _, p := range notices {
			fn(p)
		}
	}
}

// dispatchLocked resolves the target and injects one synthetic interaction,
// reporting whether one was dispatched. A selector that matches nothing skips
// the event; dispatch errors are logged, never fatal to the run.
func (e *Engine) dispatchLocked(ev *schema.Event) bool {
	var target dom.Element

	if ev.Target != schema.TargetWindow && ev.Target != schema.TargetHTML {
		matches := e.doc.Query(ev.Target)
		if len(matches) == 0 {
			e.logger.Warn("replay target not found, skipping",
				"selector", ev.Target, "type", ev.Type)
			return false
		}
		if len(matches) > 1 {
			e.logger.Debug("selector matched multiple elements, using first",
				"selector", ev.Target, "matches", len(matches))
		}
		target = matches[0]
	}

	if ev.Type == schema.EventKeyDown {
		if op, ok := TextOpFor(ev, target); ok {
			if err := e.dispatcher.ApplyText(target, op); err != nil {
				e.logger.Warn("text operation failed",
					"op", op.Kind, "error", err)
			}
		}
	}

	if err := e.dispatcher.DispatchEvent(target, ev); err != nil {
		e.logger.Warn("dispatch failed",
			"type", ev.Type, "selector", ev.Target, "error", err)
	}
	return true
}
