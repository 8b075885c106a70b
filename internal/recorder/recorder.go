// Package recorder turns capture-source notifications into the canonical
// session event log: it timestamps, masks, rate-limits, and forwards each
// record to the session store.
package recorder

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/NGWS-CD/forensic-final/internal/capture"
	"github.com/NGWS-CD/forensic-final/internal/mask"
	"github.com/NGWS-CD/forensic-final/internal/schema"
	"github.com/NGWS-CD/forensic-final/internal/store"
)

// ErrNoSession is returned when no session has been recorded yet.
var ErrNoSession = errors.New("no session recorded")

// Config holds recorder settings.
type Config struct {
	// ThrottleInterval is the minimum spacing between records of one
	// high-frequency source. Within the interval only the most recent
	// sample survives.
	ThrottleInterval time.Duration `yaml:"throttle_interval"`

	RecordMouse      bool `yaml:"record_mouse"`
	RecordKeyboard   bool `yaml:"record_keyboard"`
	RecordScroll     bool `yaml:"record_scroll"`
	RecordResize     bool `yaml:"record_resize"`
	RecordNavigation bool `yaml:"record_navigation"`
	RecordFormInputs bool `yaml:"record_form_inputs"`
	RecordClicks     bool `yaml:"record_clicks"`
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		ThrottleInterval: 75 * time.Millisecond,
		RecordMouse:      true,
		RecordKeyboard:   true,
		RecordScroll:     true,
		RecordResize:     true,
		RecordNavigation: true,
		RecordFormInputs: true,
		RecordClicks:     true,
	}
}

// Recorder owns the live session being built. It subscribes to its attached
// capture sources for the duration of one recording run.
type Recorder struct {
	cfg    Config
	masker *mask.Masker
	store  *store.Store
	logger *slog.Logger

	mu        sync.Mutex
	recording bool
	session   *schema.Session
	start     time.Time

	sources   []capture.Source
	cancels   []func()
	observers []func(schema.Event)

	lastEmit      map[schema.EventType]time.Time
	pending       map[schema.EventType]capture.Notification
	pendingTimers map[schema.EventType]*time.Timer

	now func() time.Time
}

// New creates a Recorder persisting through st.
func New(cfg Config, masker *mask.Masker, st *store.Store, logger *slog.Logger) *Recorder {
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultConfig().ThrottleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		masker: masker,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Attach registers a capture source. The recorder subscribes to attached
// sources when recording starts and unsubscribes when it stops.
func (r *Recorder) Attach(src capture.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
}

// OnEvent registers an observer invoked for every canonical event recorded.
// The suspicious scorer consumes the event stream this way.
func (r *Recorder) OnEvent(fn func(schema.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// StartRecording begins a new session. Logs and does nothing if a recording
// is already in progress.
func (r *Recorder) StartRecording(page schema.PageInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		r.logger.Warn("recording already in progress",
			"session_id", r.session.SessionID)
		return
	}

	now := r.now()
	r.session = &schema.Session{
		SessionID: schema.NewSessionID(),
		StartTime: schema.Millis(now),
		PageInfo:  page,
		Events:    []schema.Event{},
	}
	r.start = now
	r.recording = true
	r.lastEmit = make(map[schema.EventType]time.Time)
	r.pending = make(map[schema.EventType]capture.Notification)
	r.pendingTimers = make(map[schema.EventType]*time.Timer)

	for _, src := range r.sources {
		r.cancels = append(r.cancels, src.Subscribe(r.Record))
	}

	r.logger.Info("recording started",
		"session_id", r.session.SessionID, "url", page.URL)
}

// StopRecording seals the session, detaches all subscriptions, and returns
// the final ordered event sequence. Returns an empty sequence if not
// recording.
func (r *Recorder) StopRecording() []schema.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return []schema.Event{}
	}

	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil

	for typ, timer := range r.pendingTimers {
		timer.Stop()
		delete(r.pendingTimers, typ)
	}
	r.pending = nil
	r.recording = false

	r.session.EndTime = schema.Millis(r.now())
	r.session.TotalEvents = len(r.session.Events)

	if data, err := schema.Export(r.session); err == nil {
		r.store.PersistRaw(store.CategorySession, r.session.SessionID,
			r.session.StartTime, data)
	} else {
		r.logger.Warn("failed to export session", "error", err)
	}

	counts := make(map[schema.EventType]int)
	for _, ev := range r.session.Events {
		counts[ev.Type]++
	}
	r.logger.Info("recording stopped",
		"session_id", r.session.SessionID,
		"events", r.session.TotalEvents,
		"duration_ms", r.session.EndTime-r.session.StartTime,
		"by_type", counts)

	out := make([]schema.Event, len(r.session.Events))
	copy(out, r.session.Events)
	return out
}

// IsRecording reports whether a session is being recorded.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// ExportSession serializes the current (or most recently sealed) session to
// the wire format.
func (r *Recorder) ExportSession() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, ErrNoSession
	}
	return schema.Export(r.session)
}

// Record turns one notification into a canonical event. Notifications are
// only accepted while recording; high-frequency sources are coalesced to at
// most one record per throttle interval, keeping the most recent sample.
func (r *Recorder) Record(n capture.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}
	if !r.categoryEnabled(n.Type) {
		return
	}

	if !isThrottled(n.Type) {
		r.appendLocked(n)
		return
	}

	now := r.now()
	last, seen := r.lastEmit[n.Type]
	if !seen || now.Sub(last) >= r.cfg.ThrottleInterval {
		r.appendLocked(n)
		return
	}

	// Within the window: keep only the newest sample, flush it when the
	// window closes.
	r.pending[n.Type] = n
	if _, armed := r.pendingTimers[n.Type]; !armed {
		remaining := r.cfg.ThrottleInterval - now.Sub(last)
		typ := n.Type
		r.pendingTimers[typ] = time.AfterFunc(remaining, func() {
			r.flushPending(typ)
		})
	}
}

func (r *Recorder) flushPending(typ schema.EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pendingTimers, typ)
	if !r.recording {
		return
	}
	n, ok := r.pending[typ]
	if !ok {
		return
	}
	delete(r.pending, typ)
	r.appendLocked(n)
}

// appendLocked shapes and appends one event. Caller must hold the lock.
func (r *Recorder) appendLocked(n capture.Notification) {
	now := r.now()
	r.lastEmit[n.Type] = now

	target := n.Target
	if target == "" {
		target = schema.TargetWindow
	}

	ev := schema.Event{
		Type:              n.Type,
		TimestampRelative: now.Sub(r.start).Milliseconds(),
		TimestampAbsolute: schema.Millis(now),
		Target:            target,
		Payload:           r.masker.MaskMap(n.Fields),
		SessionID:         r.session.SessionID,
	}

	r.session.Events = append(r.session.Events, ev)

	// Fire-and-forget persistence: the store catches and logs failures.
	r.store.Persist(categoryFor(ev.Type), ev.SessionID, ev.TimestampAbsolute, ev)

	for _, fn := range r.observers {
		fn(ev)
	}
}

func (r *Recorder) categoryEnabled(typ schema.EventType) bool {
	switch typ {
	case schema.EventMouseMove, schema.EventMouseDown, schema.EventMouseUp:
		return r.cfg.RecordMouse
	case schema.EventClick, schema.EventDblClick, schema.EventContextMenu:
		return r.cfg.RecordClicks
	case schema.EventKeyDown, schema.EventKeyUp:
		return r.cfg.RecordKeyboard
	case schema.EventScroll, schema.EventWheel:
		return r.cfg.RecordScroll
	case schema.EventResize:
		return r.cfg.RecordResize
	case schema.EventPageLoad, schema.EventPageUnload, schema.EventURLChange:
		return r.cfg.RecordNavigation
	case schema.EventInput, schema.EventSubmit, schema.EventFocus, schema.EventBlur:
		return r.cfg.RecordFormInputs
	}
	// Forensic observations are always recorded.
	return true
}

// isThrottled reports whether a type is a high-frequency source subject to
// coalescing.
func isThrottled(typ schema.EventType) bool {
	switch typ {
	case schema.EventMouseMove, schema.EventScroll, schema.EventWheel,
		schema.EventResize:
		return true
	}
	return false
}

func categoryFor(typ schema.EventType) store.Category {
	switch typ {
	case schema.EventSensitiveNetwork, schema.EventDomainMismatch:
		return store.CategoryNetwork
	}
	return store.CategoryDOM
}
