package schema

import (
	"encoding/json"
	"reflect"
	"testing"
)

func validSession() *Session {
	return &Session{
		SessionID: NewSessionID(),
		StartTime: 1700000000000,
		EndTime:   1700000010000,
		PageInfo: PageInfo{
			URL:       "https://example.com/checkout",
			Title:     "Checkout",
			UserAgent: "test-agent",
			Viewport:  Viewport{Width: 1280, Height: 800},
		},
		Events: []Event{
			{Type: EventPageLoad, TimestampRelative: 0, Target: TargetWindow, SessionID: "s"},
			{Type: EventClick, TimestampRelative: 120, Target: "button#buy", SessionID: "s"},
			{Type: EventInput, TimestampRelative: 450, Target: "input.qty", SessionID: "s",
				Payload: map[string]any{"value": "2"}},
		},
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	t.Run("accepts valid session", func(t *testing.T) {
		if err := v.Validate(validSession()); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("rejects nil events", func(t *testing.T) {
		s := validSession()
		s.Events = nil
		if err := v.Validate(s); err == nil {
			t.Error("Validate() accepted nil events")
		}
	})

	t.Run("rejects unknown event type", func(t *testing.T) {
		s := validSession()
		s.Events[1].Type = "teleport"
		if err := v.Validate(s); err == nil {
			t.Error("Validate() accepted unknown event type")
		}
	})

	t.Run("rejects decreasing timestamps", func(t *testing.T) {
		s := validSession()
		s.Events[2].TimestampRelative = 10
		if err := v.Validate(s); err == nil {
			t.Error("Validate() accepted out-of-order events")
		}
	})

	t.Run("rejects missing session id", func(t *testing.T) {
		s := validSession()
		s.SessionID = ""
		if err := v.Validate(s); err == nil {
			t.Error("Validate() accepted empty session id")
		}
	})
}

func TestParseSession_RoundTrip(t *testing.T) {
	orig := validSession()

	data, err := Export(orig)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	got, err := ParseSession(data)
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}

	if got.SessionID != orig.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, orig.SessionID)
	}
	if got.TotalEvents != len(orig.Events) {
		t.Errorf("TotalEvents = %d, want %d", got.TotalEvents, len(orig.Events))
	}
	if len(got.Events) != len(orig.Events) {
		t.Fatalf("len(Events) = %d, want %d", len(got.Events), len(orig.Events))
	}
	for i := range got.Events {
		if got.Events[i].Type != orig.Events[i].Type {
			t.Errorf("event %d type = %q, want %q", i, got.Events[i].Type, orig.Events[i].Type)
		}
		if got.Events[i].TimestampRelative != orig.Events[i].TimestampRelative {
			t.Errorf("event %d ts = %d, want %d", i,
				got.Events[i].TimestampRelative, orig.Events[i].TimestampRelative)
		}
	}
	// Payload survives the round trip.
	if !reflect.DeepEqual(got.Events[2].Payload, orig.Events[2].Payload) {
		t.Errorf("event 2 payload = %v, want %v", got.Events[2].Payload, orig.Events[2].Payload)
	}
}

func TestParseSession_Errors(t *testing.T) {
	t.Run("missing events array", func(t *testing.T) {
		doc := `{"sessionId":"abc","startTime":1,"pageInfo":{}}`
		if _, err := ParseSession([]byte(doc)); err == nil {
			t.Error("ParseSession() accepted document without events")
		}
	})

	t.Run("events not an array", func(t *testing.T) {
		doc := `{"sessionId":"abc","startTime":1,"events":{"a":1}}`
		if _, err := ParseSession([]byte(doc)); err == nil {
			t.Error("ParseSession() accepted non-array events")
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		if _, err := ParseSession([]byte(`{not json`)); err == nil {
			t.Error("ParseSession() accepted malformed JSON")
		}
	})

	t.Run("null events", func(t *testing.T) {
		doc := `{"sessionId":"abc","startTime":1,"events":null}`
		if _, err := ParseSession([]byte(doc)); err == nil {
			t.Error("ParseSession() accepted null events")
		}
	})
}

func TestEventType(t *testing.T) {
	if !EventDomainMismatch.IsValid() || !EventDomainMismatch.IsForensic() {
		t.Error("domain-mismatch should be a valid forensic type")
	}
	if EventClick.IsForensic() {
		t.Error("click is not a forensic type")
	}
	if !EventClick.IsClickLike() || EventKeyDown.IsClickLike() {
		t.Error("click-like classification wrong")
	}
	if EventType("bogus").IsValid() {
		t.Error("unknown type reported valid")
	}
}

func TestExport_DerivesTotalEvents(t *testing.T) {
	s := validSession()
	s.TotalEvents = 99

	data, err := Export(s)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(m["totalEvents"].(float64)) != len(s.Events) {
		t.Errorf("totalEvents = %v, want %d", m["totalEvents"], len(s.Events))
	}
}
