package capture

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/NGWS-CD/forensic-final/internal/mask"
	"github.com/NGWS-CD/forensic-final/internal/schema"
)

// WireNotification is the collector-side wire format for one observation.
type WireNotification struct {
	Type   string         `json:"type"`
	Target string         `json:"target,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`

	// Network request attempts only.
	URL         string            `json:"url,omitempty"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
}

// WireNetworkRequest is the wire type tag for outbound network attempts.
// They are not a canonical event type themselves: the normalizer turns them
// into forensic events when a rule matches.
const WireNetworkRequest = "network-request"

// NormalizerConfig holds normalizer settings.
type NormalizerConfig struct {
	AllowedDomains []string `yaml:"allowed_domains"`
}

// Normalizer converts wire notifications into canonical notifications,
// deriving forensic event types along the way: hidden and iframe clicks,
// off-domain requests, and requests carrying sensitive values.
type Normalizer struct {
	allowed map[string]bool
	masker  *mask.Masker
	logger  *slog.Logger
}

// NewNormalizer creates a Normalizer. An empty domain allowlist disables the
// domain-mismatch rule.
func NewNormalizer(cfg NormalizerConfig, masker *mask.Masker, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		allowed[strings.ToLower(d)] = true
	}
	return &Normalizer{allowed: allowed, masker: masker, logger: logger}
}

// Normalize converts one wire notification into zero or more canonical
// notifications. Unknown types are dropped with a debug log.
func (n *Normalizer) Normalize(in WireNotification) []Notification {
	if in.Type == WireNetworkRequest {
		return n.normalizeNetwork(in)
	}

	typ := schema.EventType(in.Type)
	if !typ.IsValid() {
		n.logger.Debug("dropping notification of unknown type", "type", in.Type)
		return nil
	}

	typ = reclassifyClick(typ, in.Fields)

	target := in.Target
	if target == "" {
		target = schema.TargetWindow
	}

	return []Notification{{Type: typ, Target: target, Fields: in.Fields}}
}

// reclassifyClick rewrites clicks on hidden or frame-embedded elements to
// their forensic types.
func reclassifyClick(typ schema.EventType, fields map[string]any) schema.EventType {
	if typ != schema.EventClick {
		return typ
	}
	if truthy(fields["hidden"]) {
		return schema.EventHiddenClick
	}
	if truthy(fields["iframe"]) {
		return schema.EventIframeClick
	}
	return typ
}

// normalizeNetwork applies the network rules. A single request can trip
// both the domain and the sensitive-value rule.
func (n *Normalizer) normalizeNetwork(in WireNotification) []Notification {
	var out []Notification

	fields := map[string]any{
		"url":    in.URL,
		"method": in.Method,
	}
	if in.Body != "" {
		fields["body"] = n.masker.MaskBody(in.ContentType, in.Body)
		fields["contentType"] = in.ContentType
	}

	if host, ok := requestHost(in.URL); ok && len(n.allowed) > 0 && !n.domainAllowed(host) {
		out = append(out, Notification{
			Type:   schema.EventDomainMismatch,
			Target: schema.TargetWindow,
			Fields: cloneWith(fields, "domain", host),
		})
	}

	if n.carriesSensitiveValue(in) {
		out = append(out, Notification{
			Type:   schema.EventSensitiveNetwork,
			Target: schema.TargetWindow,
			Fields: fields,
		})
	}

	return out
}

func (n *Normalizer) domainAllowed(host string) bool {
	host = strings.ToLower(host)
	if n.allowed[host] {
		return true
	}
	// Subdomains of an allowed domain are allowed.
	for d := range n.allowed {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// carriesSensitiveValue reports whether the request body or headers name a
// sensitive field.
func (n *Normalizer) carriesSensitiveValue(in WireNotification) bool {
	if n.masker.ContainsSensitiveField(in.ContentType, in.Body) {
		return true
	}
	for name := range in.Headers {
		if n.masker.IsSensitive(name) {
			return true
		}
	}
	return false
}

func requestHost(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Hostname(), true
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func cloneWith(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
