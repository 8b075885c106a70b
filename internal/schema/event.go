// Package schema defines the canonical event and session format for the
// forensic agent. All captured interactions are normalized to this structure
// before storage, scoring, or replay.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what kind of interaction or observation an event
// records.
type EventType string

// Interaction event types.
const (
	EventClick       EventType = "click"
	EventDblClick    EventType = "dblclick"
	EventContextMenu EventType = "contextmenu"
	EventMouseDown   EventType = "mousedown"
	EventMouseUp     EventType = "mouseup"
	EventMouseMove   EventType = "mousemove"
	EventWheel       EventType = "wheel"
	EventKeyDown     EventType = "keydown"
	EventKeyUp       EventType = "keyup"
	EventInput       EventType = "input"
	EventSubmit      EventType = "submit"
	EventFocus       EventType = "focus"
	EventBlur        EventType = "blur"
	EventScroll      EventType = "scroll"
	EventResize      EventType = "resize"
	EventPageLoad    EventType = "page-load"
	EventPageUnload  EventType = "page-unload"
	EventURLChange   EventType = "url-change"
)

// Forensic event types, emitted by the capture normalizer rather than by
// direct user interaction.
const (
	EventValueAccess      EventType = "value-access"
	EventEncodingAttempt  EventType = "encoding-attempt"
	EventExternalScript   EventType = "external-script"
	EventDomainMismatch   EventType = "domain-mismatch"
	EventHiddenClick      EventType = "hidden-click"
	EventIframeClick      EventType = "iframe-click"
	EventElementDisabling EventType = "element-disabling"
	EventSensitiveNetwork EventType = "sensitive-network"
)

var validEventTypes = map[EventType]bool{
	EventClick: true, EventDblClick: true, EventContextMenu: true,
	EventMouseDown: true, EventMouseUp: true, EventMouseMove: true,
	EventWheel: true, EventKeyDown: true, EventKeyUp: true,
	EventInput: true, EventSubmit: true, EventFocus: true, EventBlur: true,
	EventScroll: true, EventResize: true,
	EventPageLoad: true, EventPageUnload: true, EventURLChange: true,
	EventValueAccess: true, EventEncodingAttempt: true,
	EventExternalScript: true, EventDomainMismatch: true,
	EventHiddenClick: true, EventIframeClick: true,
	EventElementDisabling: true, EventSensitiveNetwork: true,
}

// IsValid checks if the event type belongs to the fixed vocabulary.
func (t EventType) IsValid() bool {
	return validEventTypes[t]
}

// IsForensic reports whether the type is an observation produced by the
// capture normalizer rather than a direct user interaction.
func (t EventType) IsForensic() bool {
	switch t {
	case EventValueAccess, EventEncodingAttempt, EventExternalScript,
		EventDomainMismatch, EventHiddenClick, EventIframeClick,
		EventElementDisabling, EventSensitiveNetwork:
		return true
	}
	return false
}

// IsClickLike reports whether the type counts as a click for temporal
// correlation purposes.
func (t EventType) IsClickLike() bool {
	switch t {
	case EventClick, EventDblClick, EventContextMenu, EventMouseDown,
		EventMouseUp, EventHiddenClick, EventIframeClick:
		return true
	}
	return false
}

// Target sentinels for events not tied to a specific element.
const (
	TargetWindow = "window"
	TargetHTML   = "html"
)

// Event is one canonical, timestamped interaction or observation record.
// Immutable once recorded.
type Event struct {
	// Type is a tag from the fixed event vocabulary.
	Type EventType `json:"type" validate:"required"`

	// TimestampRelative is milliseconds since recording start. Events
	// within one session are ordered by this field, non-decreasing.
	TimestampRelative int64 `json:"timestampRelative" validate:"min=0"`

	// TimestampAbsolute is wall-clock milliseconds, informational only.
	TimestampAbsolute int64 `json:"timestampAbsolute"`

	// Target is a selector locator string, or "window"/"html" for
	// non-element events.
	Target string `json:"target" validate:"required"`

	// Payload holds type-specific fields: coordinates, key info, scroll
	// deltas, masked values, modifier flags. Sensitive values are masked
	// before the payload is stored.
	Payload map[string]any `json:"payload,omitempty"`

	// SessionID is the recording run this event belongs to.
	SessionID string `json:"sessionId" validate:"required"`
}

// Viewport holds the page viewport dimensions at recording start.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageInfo describes the page a session was recorded on.
type PageInfo struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	UserAgent string   `json:"userAgent"`
	Viewport  Viewport `json:"viewport"`
}

// Session is one bounded recording run: page metadata plus the ordered event
// log. Sealed (EndTime set) when recording stops, immutable thereafter.
type Session struct {
	SessionID   string   `json:"sessionId" validate:"required"`
	StartTime   int64    `json:"startTime" validate:"required"`
	EndTime     int64    `json:"endTime,omitempty"`
	PageInfo    PageInfo `json:"pageInfo"`
	Events      []Event  `json:"events"`
	TotalEvents int      `json:"totalEvents"`
}

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// Millis converts a time to the wall-clock millisecond representation used
// throughout the session format.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
