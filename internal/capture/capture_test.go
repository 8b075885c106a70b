package capture

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NGWS-CD/forensic-final/internal/mask"
	"github.com/NGWS-CD/forensic-final/internal/schema"
)

func newTestNormalizer(domains ...string) *Normalizer {
	return NewNormalizer(
		NormalizerConfig{AllowedDomains: domains},
		mask.New(nil, nil),
		nil,
	)
}

func TestHub(t *testing.T) {
	hub := NewHub()

	var got []Notification
	cancel := hub.Subscribe(func(n Notification) {
		got = append(got, n)
	})

	hub.Publish(Notification{Type: schema.EventClick, Target: "button#buy"})
	if len(got) != 1 {
		t.Fatalf("subscriber saw %d notifications, want 1", len(got))
	}

	cancel()
	hub.Publish(Notification{Type: schema.EventScroll, Target: "window"})
	if len(got) != 1 {
		t.Error("cancelled subscriber still received notifications")
	}
}

func TestNormalizer_Interactions(t *testing.T) {
	n := newTestNormalizer()

	t.Run("passes valid types through", func(t *testing.T) {
		out := n.Normalize(WireNotification{Type: "keydown", Target: "input.qty",
			Fields: map[string]any{"key": "a"}})
		if len(out) != 1 || out[0].Type != schema.EventKeyDown {
			t.Fatalf("Normalize() = %v", out)
		}
	})

	t.Run("drops unknown types", func(t *testing.T) {
		if out := n.Normalize(WireNotification{Type: "telekinesis"}); len(out) != 0 {
			t.Errorf("Normalize() = %v, want empty", out)
		}
	})

	t.Run("empty target becomes window", func(t *testing.T) {
		out := n.Normalize(WireNotification{Type: "resize"})
		if out[0].Target != schema.TargetWindow {
			t.Errorf("target = %q, want window", out[0].Target)
		}
	})

	t.Run("hidden click reclassified", func(t *testing.T) {
		out := n.Normalize(WireNotification{Type: "click", Target: "a.x",
			Fields: map[string]any{"hidden": true}})
		if out[0].Type != schema.EventHiddenClick {
			t.Errorf("type = %q, want hidden-click", out[0].Type)
		}
	})

	t.Run("iframe click reclassified", func(t *testing.T) {
		out := n.Normalize(WireNotification{Type: "click", Target: "a.x",
			Fields: map[string]any{"iframe": true}})
		if out[0].Type != schema.EventIframeClick {
			t.Errorf("type = %q, want iframe-click", out[0].Type)
		}
	})

	t.Run("forensic passthrough", func(t *testing.T) {
		out := n.Normalize(WireNotification{Type: "encoding-attempt", Target: "window",
			Fields: map[string]any{"api": "btoa"}})
		if len(out) != 1 || out[0].Type != schema.EventEncodingAttempt {
			t.Fatalf("Normalize() = %v", out)
		}
	})
}

func TestNormalizer_Network(t *testing.T) {
	n := newTestNormalizer("example.com")

	t.Run("allowed domain with benign body produces nothing", func(t *testing.T) {
		out := n.Normalize(WireNotification{
			Type: WireNetworkRequest,
			URL:  "https://example.com/api/cart",
			Body: `{"qty":"2"}`, ContentType: "application/json",
		})
		if len(out) != 0 {
			t.Errorf("Normalize() = %v, want empty", out)
		}
	})

	t.Run("subdomain of allowed domain is allowed", func(t *testing.T) {
		out := n.Normalize(WireNotification{
			Type: WireNetworkRequest,
			URL:  "https://api.example.com/x",
		})
		if len(out) != 0 {
			t.Errorf("Normalize() = %v, want empty", out)
		}
	})

	t.Run("off-domain request becomes domain-mismatch", func(t *testing.T) {
		out := n.Normalize(WireNotification{
			Type: WireNetworkRequest,
			URL:  "https://evil.example.net/collect",
		})
		if len(out) != 1 || out[0].Type != schema.EventDomainMismatch {
			t.Fatalf("Normalize() = %v", out)
		}
		if out[0].Fields["domain"] != "evil.example.net" {
			t.Errorf("domain field = %v", out[0].Fields["domain"])
		}
	})

	t.Run("sensitive body becomes sensitive-network with masked body", func(t *testing.T) {
		out := n.Normalize(WireNotification{
			Type:        WireNetworkRequest,
			URL:         "https://example.com/api/login",
			Body:        `{"password":"secret123"}`,
			ContentType: "application/json",
		})
		if len(out) != 1 || out[0].Type != schema.EventSensitiveNetwork {
			t.Fatalf("Normalize() = %v", out)
		}
		body := out[0].Fields["body"].(string)
		if strings.Contains(body, "secret123") {
			t.Errorf("body leaked literal value: %s", body)
		}
	})

	t.Run("off-domain and sensitive trips both rules", func(t *testing.T) {
		out := n.Normalize(WireNotification{
			Type:        WireNetworkRequest,
			URL:         "https://evil.example.net/collect",
			Body:        "card=4111111111111111",
			ContentType: "application/x-www-form-urlencoded",
		})
		if len(out) != 2 {
			t.Fatalf("Normalize() = %d notifications, want 2", len(out))
		}
	})

	t.Run("empty allowlist disables domain rule", func(t *testing.T) {
		n := newTestNormalizer()
		out := n.Normalize(WireNotification{
			Type: WireNetworkRequest,
			URL:  "https://anywhere.net/x",
		})
		if len(out) != 0 {
			t.Errorf("Normalize() = %v, want empty", out)
		}
	})
}

func TestHandler_HandleNotifications(t *testing.T) {
	hub := NewHub()
	var received []Notification
	hub.Subscribe(func(n Notification) { received = append(received, n) })

	h := NewHandler(newTestNormalizer(), hub, nil)

	post := func(t *testing.T, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/v1/notifications",
			bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		h.HandleNotifications(w, req)
		return w
	}

	t.Run("accepts a batch", func(t *testing.T) {
		received = nil
		w := post(t, `{"notifications":[
			{"type":"click","target":"button#buy"},
			{"type":"scroll","fields":{"x":0,"y":300}}
		]}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp BatchResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad response: %v", err)
		}
		if resp.Accepted != 2 {
			t.Errorf("accepted = %d, want 2", resp.Accepted)
		}
		if len(received) != 2 {
			t.Errorf("hub saw %d notifications, want 2", len(received))
		}
	})

	t.Run("counts dropped unknowns", func(t *testing.T) {
		w := post(t, `{"notifications":[{"type":"warp"}]}`)
		var resp BatchResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Dropped != 1 || resp.Accepted != 0 {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		if w := post(t, `{"notifications":[]}`); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		if w := post(t, `{nope`); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("rejects GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
		w := httptest.NewRecorder()
		h.HandleNotifications(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		h := NewHandler(newTestNormalizer(), NewHub(), nil).WithMaxPayload(16)
		w := post2(t, h, `{"notifications":[{"type":"click","target":"a"}]}`)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", w.Code)
		}
	})
}

func post2(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications",
		bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	h.HandleNotifications(w, req)
	return w
}
