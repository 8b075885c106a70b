// Package scorer assigns a risk severity to canonical events and keeps the
// suspicious-activity side channel. Severity is a float in [0,1]; events at
// or above the configured threshold are flagged.
package scorer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/NGWS-CD/forensic-final/internal/schema"
	"github.com/NGWS-CD/forensic-final/internal/store"
)

// baseSeverity is the static lookup from event type to base risk. Types not
// listed score 0.
var baseSeverity = map[schema.EventType]float64{
	schema.EventDomainMismatch:   1.0,
	schema.EventExternalScript:   0.9,
	schema.EventSensitiveNetwork: 0.9,
	schema.EventEncodingAttempt:  0.8,
	schema.EventIframeClick:      0.8,
	schema.EventHiddenClick:      0.7,
	schema.EventValueAccess:      0.6,
	schema.EventElementDisabling: 0.6,
}

// ScoredEvent decorates an Event with its risk assessment. Derived, never
// persisted as a first-class entity.
type ScoredEvent struct {
	schema.Event
	Severity     float64 `json:"severity"`
	IsSuspicious bool    `json:"isSuspicious"`
}

// Config holds scorer settings.
type Config struct {
	// Threshold is the severity at which an event is flagged suspicious.
	Threshold float64 `yaml:"threshold"`

	// ClickWindow is how close behind a click a sensitive network event
	// must follow to be considered click-triggered.
	ClickWindow time.Duration `yaml:"click_window"`
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.8,
		ClickWindow: time.Second,
	}
}

// Scorer scores events as they are recorded. It retains the timestamp of
// the most recent click-like event to correlate exfiltration-adjacent
// network activity.
type Scorer struct {
	cfg    Config
	store  *store.Store
	logger *slog.Logger

	mu           sync.Mutex
	lastClickRel int64 // -1 when no click seen yet
	suspicious   []ScoredEvent
}

// New creates a Scorer. The store may be nil; then suspicious records are
// kept in memory only.
func New(cfg Config, st *store.Store, logger *slog.Logger) *Scorer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.ClickWindow <= 0 {
		cfg.ClickWindow = DefaultConfig().ClickWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		cfg:          cfg,
		store:        st,
		logger:       logger,
		lastClickRel: -1,
	}
}

// Score assigns a severity to one event and records it on the suspicious
// channel when flagged. Call order must follow event order: the click
// correlation depends on it.
func (s *Scorer) Score(ev schema.Event) ScoredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	severity := baseSeverity[ev.Type]

	scored := ScoredEvent{Event: ev, Severity: severity}

	if ev.Type == schema.EventSensitiveNetwork && s.clickCorrelatedLocked(ev) {
		scored.Event = withPayloadFlag(ev, "triggeredByClick", true)
	}

	if ev.Type.IsClickLike() {
		s.lastClickRel = ev.TimestampRelative
	}

	scored.IsSuspicious = severity >= s.cfg.Threshold
	if scored.IsSuspicious {
		s.suspicious = append(s.suspicious, scored)
		s.logger.Warn("suspicious activity",
			"type", ev.Type,
			"severity", severity,
			"target", ev.Target,
			"session_id", ev.SessionID)
		if s.store != nil {
			s.store.Persist(store.CategorySuspicious, ev.SessionID,
				ev.TimestampAbsolute, scored)
		}
	}

	return scored
}

// clickCorrelatedLocked reports whether a recent click precedes the event
// within the correlation window. Caller must hold the lock.
func (s *Scorer) clickCorrelatedLocked(ev schema.Event) bool {
	if s.lastClickRel < 0 {
		return false
	}
	delta := ev.TimestampRelative - s.lastClickRel
	return delta >= 0 && delta <= s.cfg.ClickWindow.Milliseconds()
}

// SuspiciousRecords returns the events flagged so far, in original order.
func (s *Scorer) SuspiciousRecords() []ScoredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScoredEvent, len(s.suspicious))
	copy(out, s.suspicious)
	return out
}

// Reset clears correlation state and the suspicious channel, for a new
// recording run.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastClickRel = -1
	s.suspicious = nil
}

// Threshold returns the configured suspicion threshold.
func (s *Scorer) Threshold() float64 {
	return s.cfg.Threshold
}

// Severity returns the base severity for an event type.
func Severity(typ schema.EventType) float64 {
	return baseSeverity[typ]
}

func withPayloadFlag(ev schema.Event, key string, value any) schema.Event {
	payload := make(map[string]any, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload[key] = value
	ev.Payload = payload
	return ev
}
