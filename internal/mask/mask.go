// Package mask redacts sensitive field values before they reach storage or
// the wire. Redaction is irreversible and idempotent.
package mask

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/url"
	"strings"
)

// MarkerChar is the character used to build redaction markers.
const MarkerChar = '*'

// MarkerMaxLen caps marker length so original value length is never leaked
// beyond "8 or more" vs "fewer".
const MarkerMaxLen = 8

// DefaultPatterns is the built-in sensitive field name pattern set. A field
// is sensitive when its name case-insensitively contains any pattern.
var DefaultPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"card",
	"cvv",
	"cvc",
	"ssn",
	"pin",
	"auth",
	"credential",
}

// Masker redacts values of fields whose names match a configured pattern
// set.
type Masker struct {
	patterns []string
	logger   *slog.Logger
}

// New creates a Masker. Empty patterns fall back to DefaultPatterns.
func New(patterns []string, logger *slog.Logger) *Masker {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if logger == nil {
		logger = slog.Default()
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &Masker{patterns: lowered, logger: logger}
}

// IsSensitive checks whether a field name matches the pattern set.
func (m *Masker) IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range m.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsMasked reports whether a value is already a redaction marker. Marker
// characters never match a sensitivity pattern, which is what makes masking
// idempotent.
func IsMasked(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r != MarkerChar {
			return false
		}
	}
	return true
}

// Redact returns the redaction marker for a value: one marker character per
// input character, capped at MarkerMaxLen.
func Redact(value string) string {
	if value == "" {
		return value
	}
	n := len([]rune(value))
	if n > MarkerMaxLen {
		n = MarkerMaxLen
	}
	return strings.Repeat(string(MarkerChar), n)
}

// MaskField redacts value when the field name is sensitive, and returns it
// unchanged otherwise. Already-masked values pass through unchanged.
func (m *Masker) MaskField(name, value string) string {
	if !m.IsSensitive(name) {
		return value
	}
	if IsMasked(value) {
		return value
	}
	return Redact(value)
}

// MaskMap applies MaskField recursively to a payload mapping. Nested
// mappings are masked per-field; non-string leaf values of sensitive fields
// are replaced by a full-length marker.
func (m *Masker) MaskMap(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = m.MaskField(k, val)
		case map[string]any:
			out[k] = m.MaskMap(val)
		default:
			if m.IsSensitive(k) {
				out[k] = strings.Repeat(string(MarkerChar), MarkerMaxLen)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// MaskBody masks a request or form body according to its content type.
// JSON bodies are decoded and masked per-field; urlencoded bodies are masked
// per-parameter; anything else is treated as plain text and redacted whole
// only when a sensitive pattern occurs in it.
//
// Unparsable structured bodies are returned unchanged with a warning log:
// availability of the capture pipeline wins over strict redaction here.
func (m *Masker) MaskBody(contentType, body string) string {
	if body == "" {
		return body
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case strings.Contains(mediaType, "json"):
		return m.maskJSONBody(body)
	case mediaType == "application/x-www-form-urlencoded":
		return m.maskFormBody(body)
	default:
		return m.maskPlainBody(body)
	}
}

func (m *Masker) maskJSONBody(body string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		m.logger.Warn("unparsable JSON body left unmasked", "error", err)
		return body
	}
	masked, err := json.Marshal(m.MaskMap(fields))
	if err != nil {
		m.logger.Warn("failed to re-encode masked body", "error", err)
		return body
	}
	return string(masked)
}

func (m *Masker) maskFormBody(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		m.logger.Warn("unparsable form body left unmasked", "error", err)
		return body
	}
	for name, vals := range values {
		for i, v := range vals {
			vals[i] = m.MaskField(name, v)
		}
		values[name] = vals
	}
	return values.Encode()
}

// ContainsSensitiveField reports whether a body names a sensitive field.
// Unparsable structured bodies report false, matching MaskBody's
// availability-first fallback.
func (m *Masker) ContainsSensitiveField(contentType, body string) bool {
	if body == "" {
		return false
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case strings.Contains(mediaType, "json"):
		var fields map[string]any
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			return false
		}
		return m.mapHasSensitive(fields)
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(body)
		if err != nil {
			return false
		}
		for name := range values {
			if m.IsSensitive(name) {
				return true
			}
		}
		return false
	default:
		return m.IsSensitive(body)
	}
}

func (m *Masker) mapHasSensitive(fields map[string]any) bool {
	for k, v := range fields {
		if m.IsSensitive(k) {
			return true
		}
		if nested, ok := v.(map[string]any); ok && m.mapHasSensitive(nested) {
			return true
		}
	}
	return false
}

// maskPlainBody handles bodies with no field structure. Field boundaries are
// unknown, so the whole body is redacted when any pattern appears in it.
func (m *Masker) maskPlainBody(body string) string {
	if IsMasked(body) {
		return body
	}
	if m.IsSensitive(body) {
		return Redact(body)
	}
	return body
}
