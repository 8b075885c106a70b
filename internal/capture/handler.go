package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler receives collector notification batches over HTTP and publishes
// them to the hub.
type Handler struct {
	normalizer *Normalizer
	hub        *Hub
	logger     *slog.Logger
	maxPayload int
	maxBatch   int

	notificationsTotal uint64
}

// NewHandler creates a capture Handler.
func NewHandler(normalizer *Normalizer, hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		normalizer: normalizer,
		hub:        hub,
		logger:     logger,
		maxPayload: 4 * 1024 * 1024,
		maxBatch:   500,
	}
}

// WithMaxPayload sets the maximum request body size.
func (h *Handler) WithMaxPayload(size int) *Handler {
	h.maxPayload = size
	return h
}

// WithMaxBatch sets the maximum notifications per batch.
func (h *Handler) WithMaxBatch(size int) *Handler {
	h.maxBatch = size
	return h
}

// BatchRequest is the request body for notification ingestion.
type BatchRequest struct {
	Notifications []WireNotification `json:"notifications"`
}

// BatchResponse is the response for notification ingestion.
type BatchResponse struct {
	Success   bool     `json:"success"`
	Accepted  int      `json:"accepted"`
	Dropped   int      `json:"dropped"`
	Errors    []string `json:"errors,omitempty"`
	RequestID string   `json:"request_id"`
}

// HandleNotifications handles POST /v1/notifications.
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "POST required", requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
		return
	}

	var req BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}

	if len(req.Notifications) == 0 {
		respondError(w, http.StatusBadRequest, "no notifications provided", requestID)
		return
	}
	if len(req.Notifications) > h.maxBatch {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("batch too large: %d > %d", len(req.Notifications), h.maxBatch), requestID)
		return
	}

	accepted, dropped := 0, 0
	for _, wire := range req.Notifications {
		normalized := h.normalizer.Normalize(wire)
		if len(normalized) == 0 {
			dropped++
			continue
		}
		for _, n := range normalized {
			h.hub.Publish(n)
			accepted++
		}
	}
	atomic.AddUint64(&h.notificationsTotal, uint64(accepted))

	respondJSON(w, http.StatusOK, BatchResponse{
		Success:   true,
		Accepted:  accepted,
		Dropped:   dropped,
		RequestID: requestID,
	})
}

// Total returns the number of notifications published so far.
func (h *Handler) Total() uint64 {
	return atomic.LoadUint64(&h.notificationsTotal)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg, requestID string) {
	respondJSON(w, status, BatchResponse{
		Success:   false,
		Errors:    []string{msg},
		RequestID: requestID,
	})
}
