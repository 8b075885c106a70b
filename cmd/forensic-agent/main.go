// Package main is the entry point for the forensic capture agent.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NGWS-CD/forensic-final/internal/capture"
	"github.com/NGWS-CD/forensic-final/internal/config"
	"github.com/NGWS-CD/forensic-final/internal/mask"
	"github.com/NGWS-CD/forensic-final/internal/recorder"
	"github.com/NGWS-CD/forensic-final/internal/schema"
	"github.com/NGWS-CD/forensic-final/internal/scorer"
	"github.com/NGWS-CD/forensic-final/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"sqlite_enabled", cfg.Storage.SQLite.Enabled,
		"redis_enabled", cfg.Storage.Redis.Enabled,
		"kafka_enabled", cfg.Storage.Kafka.Enabled,
		"remote_enabled", cfg.Storage.Remote.Enabled,
		"allowed_domains", cfg.Scoring.AllowedDomains,
	)

	sinks, err := buildSinks(cfg, logger)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	st := store.New(store.Config{
		BufferSize:   cfg.Storage.BufferSize,
		QueueSize:    cfg.Storage.QueueSize,
		WriteTimeout: cfg.Storage.WriteTimeout,
	}, sinks, logger)

	patterns := mask.DefaultPatterns
	if len(cfg.Masking.ExtraPatterns) > 0 {
		patterns = append(append([]string{}, patterns...), cfg.Masking.ExtraPatterns...)
	}
	masker := mask.New(patterns, logger)

	normalizer := capture.NewNormalizer(capture.NormalizerConfig{
		AllowedDomains: cfg.Scoring.AllowedDomains,
	}, masker, logger)

	hub := capture.NewHub()
	handler := capture.NewHandler(normalizer, hub, logger).
		WithMaxPayload(cfg.Server.MaxPayloadSize).
		WithMaxBatch(cfg.Server.MaxBatchSize)

	rec := recorder.New(recorder.Config{
		ThrottleInterval: cfg.Recording.ThrottleInterval,
		RecordMouse:      cfg.Recording.Mouse,
		RecordKeyboard:   cfg.Recording.Keyboard,
		RecordScroll:     cfg.Recording.Scroll,
		RecordResize:     cfg.Recording.Resize,
		RecordNavigation: cfg.Recording.Navigation,
		RecordFormInputs: cfg.Recording.FormInputs,
		RecordClicks:     cfg.Recording.Clicks,
	}, masker, st, logger)
	rec.Attach(hub)

	sc := scorer.New(scorer.Config{
		Threshold:   cfg.Scoring.Threshold,
		ClickWindow: cfg.Scoring.ClickWindow,
	}, st, logger)
	rec.OnEvent(func(ev schema.Event) {
		sc.Score(ev)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/notifications", handler.HandleNotifications)
	mux.HandleFunc("POST /v1/recording/start", startRecording(rec, sc))
	mux.HandleFunc("POST /v1/recording/stop", stopRecording(rec))
	mux.HandleFunc("GET /v1/session/export", exportSession(rec))
	mux.HandleFunc("GET /v1/suspicious", listSuspicious(sc))
	mux.HandleFunc("GET /health", healthCheck(rec, st))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting forensic agent", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Seal an in-flight recording so the session document is persisted.
	if rec.IsRecording() {
		events := rec.StopRecording()
		slog.Info("sealed in-flight recording", "events", len(events))
	}

	if err := st.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete",
		"buffered", len(st.Buffered()),
		"dropped", st.Dropped(),
	)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildSinks constructs every enabled persistence sink. Any sink that fails
// to connect aborts startup rather than silently dropping records.
func buildSinks(cfg *config.Config, logger *slog.Logger) ([]store.Sink, error) {
	var sinks []store.Sink

	if cfg.Storage.SQLite.Enabled {
		sink, err := store.NewSQLiteSink(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Storage.Redis.Enabled {
		rcfg := store.DefaultRedisConfig()
		rcfg.Addr = cfg.Storage.Redis.Address
		rcfg.Password = cfg.Storage.Redis.Password
		rcfg.DB = cfg.Storage.Redis.DB
		rcfg.TTL = cfg.Storage.Redis.TTL
		sink, err := store.NewRedisSink(rcfg)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Storage.Kafka.Enabled {
		kcfg := store.DefaultKafkaConfig()
		kcfg.Brokers = cfg.Storage.Kafka.Brokers
		if cfg.Storage.Kafka.Topic != "" {
			kcfg.Topic = cfg.Storage.Kafka.Topic
		}
		sink, err := store.NewKafkaSink(kcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Storage.Remote.Enabled {
		sink, err := store.NewRemoteSink(store.RemoteConfig{
			Enabled:  true,
			Endpoint: cfg.Storage.Remote.Endpoint,
			Headers:  cfg.Storage.Remote.Headers,
			Timeout:  cfg.Storage.Remote.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
		sinks = append(sinks, sink)
	}

	return sinks, nil
}

type startRequest struct {
	PageInfo schema.PageInfo `json:"pageInfo"`
}

func startRecording(rec *recorder.Recorder, sc *scorer.Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rec.IsRecording() {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"error":   "recording already in progress",
			})
			return
		}

		var req startRequest
		if r.Body != nil {
			// PageInfo is optional; an empty body starts a bare session.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		sc.Reset()
		rec.StartRecording(req.PageInfo)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func stopRecording(rec *recorder.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rec.IsRecording() {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"error":   "no recording in progress",
			})
			return
		}

		events := rec.StopRecording()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"totalEvents": len(events),
		})
	}
}

func exportSession(rec *recorder.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := rec.ExportSession()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, recorder.ErrNoSession) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func listSuspicious(sc *scorer.Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := sc.SuspiciousRecords()
		writeJSON(w, http.StatusOK, map[string]any{
			"count":   len(records),
			"records": records,
		})
	}
}

func healthCheck(rec *recorder.Recorder, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"recording": rec.IsRecording(),
			"buffered":  len(st.Buffered()),
			"dropped":   st.Dropped(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
