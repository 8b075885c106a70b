package schema

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks sessions against the canonical schema before they are
// accepted for replay.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new session Validator.
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return EventType(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v}
}

// Validate validates a session against the canonical schema. Returns an
// error describing the first problem found.
func (v *Validator) Validate(s *Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}

	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if s.Events == nil {
		return fmt.Errorf("events must be an array")
	}

	// Ordering invariant: timestampRelative is non-decreasing. Replay
	// scheduling depends on it.
	var prev int64
	for i, ev := range s.Events {
		if !ev.Type.IsValid() {
			return fmt.Errorf("event %d: unknown type %q", i, ev.Type)
		}
		if ev.Target == "" {
			return fmt.Errorf("event %d: missing target", i)
		}
		if ev.TimestampRelative < prev {
			return fmt.Errorf("event %d: timestampRelative %d precedes %d",
				i, ev.TimestampRelative, prev)
		}
		prev = ev.TimestampRelative
	}

	return nil
}

// sessionWire mirrors Session but keeps events raw so that a missing or
// non-array events field is distinguishable from an empty one.
type sessionWire struct {
	SessionID   string          `json:"sessionId"`
	StartTime   int64           `json:"startTime"`
	EndTime     int64           `json:"endTime"`
	PageInfo    PageInfo        `json:"pageInfo"`
	Events      json.RawMessage `json:"events"`
	TotalEvents int             `json:"totalEvents"`
}

// ParseSession decodes and validates a session export document. This is the
// wire format the recorder emits and the replay engine accepts.
func ParseSession(data []byte) (*Session, error) {
	var wire sessionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("invalid session JSON: %w", err)
	}

	if len(wire.Events) == 0 {
		return nil, fmt.Errorf("session has no events array")
	}

	var events []Event
	if err := json.Unmarshal(wire.Events, &events); err != nil {
		return nil, fmt.Errorf("events is not an event array: %w", err)
	}
	if events == nil {
		return nil, fmt.Errorf("events array is null")
	}

	s := &Session{
		SessionID:   wire.SessionID,
		StartTime:   wire.StartTime,
		EndTime:     wire.EndTime,
		PageInfo:    wire.PageInfo,
		Events:      events,
		TotalEvents: wire.TotalEvents,
	}

	if err := NewValidator().Validate(s); err != nil {
		return nil, err
	}

	return s, nil
}

// Export serializes a session to the wire format. TotalEvents is derived
// from the event list so the two can never disagree.
func Export(s *Session) ([]byte, error) {
	out := *s
	out.TotalEvents = len(s.Events)
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize session: %w", err)
	}
	return data, nil
}
