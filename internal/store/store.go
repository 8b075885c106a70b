// Package store provides the session store: a process-wide append-only
// buffer of serialized records plus a best-effort persistence sink
// abstraction. Writes never block or fail the capture and replay timelines.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Category classifies persisted records for key construction.
type Category string

const (
	CategoryDOM        Category = "dom"
	CategoryNetwork    Category = "network"
	CategorySuspicious Category = "suspicious"
	CategorySession    Category = "session"
)

// Key builds the persistence key for a record:
// <category>_<sessionId>_<timestamp>.
func Key(cat Category, sessionID string, timestamp int64) string {
	return fmt.Sprintf("%s_%s_%d", cat, sessionID, timestamp)
}

// Sink persists serialized records under a key. Implementations must be
// safe for concurrent use.
type Sink interface {
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Record is one serialized entry held in the in-memory buffer and handed to
// sinks.
type Record struct {
	Key       Category
	SessionID string
	Timestamp int64
	Value     []byte
}

// StorageKey returns the persistence key for the record.
func (r Record) StorageKey() string {
	return Key(r.Key, r.SessionID, r.Timestamp)
}

// Config holds store settings.
type Config struct {
	BufferSize   int           `yaml:"buffer_size"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:   10000,
		QueueSize:    1024,
		WriteTimeout: 10 * time.Second,
	}
}

// Store is the process-wide session store. Persist appends to the in-memory
// buffer synchronously and fans the record out to the configured sinks from
// a background worker. Sink failures are logged, never propagated.
type Store struct {
	cfg    Config
	buffer *Buffer
	sinks  []Sink
	logger *slog.Logger

	queue  chan Record
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once

	mu      sync.Mutex
	dropped uint64
}

// New creates a Store writing to the given sinks.
func New(cfg Config, sinks []Sink, logger *slog.Logger) *Store {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		cfg:    cfg,
		buffer: NewBuffer(cfg.BufferSize),
		sinks:  sinks,
		logger: logger,
		queue:  make(chan Record, cfg.QueueSize),
		done:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s
}

// Persist serializes a value, appends it to the buffer, and queues it for
// the sinks. It never blocks: when the sink queue is full the write is
// dropped with a warning.
func (s *Store) Persist(cat Category, sessionID string, timestamp int64, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("failed to serialize record",
			"category", cat, "session_id", sessionID, "error", err)
		return
	}
	s.PersistRaw(cat, sessionID, timestamp, data)
}

// PersistRaw is Persist for pre-serialized values.
func (s *Store) PersistRaw(cat Category, sessionID string, timestamp int64, data []byte) {
	rec := Record{Key: cat, SessionID: sessionID, Timestamp: timestamp, Value: data}
	s.buffer.Append(rec)

	select {
	case s.queue <- rec:
	case <-s.done:
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		s.logger.Warn("sink queue full, write dropped",
			"key", rec.StorageKey(), "total_dropped", n)
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.writeSinks(rec)
		case <-s.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case rec := <-s.queue:
					s.writeSinks(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) writeSinks(rec Record) {
	key := rec.StorageKey()
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		if err := sink.Put(ctx, key, rec.Value); err != nil {
			s.logger.Warn("sink write failed", "key", key, "error", err)
		}
		cancel()
	}
}

// Buffered returns a snapshot of the in-memory buffer, oldest first.
func (s *Store) Buffered() []Record {
	return s.buffer.Snapshot()
}

// Dropped returns the number of sink writes dropped due to backpressure.
func (s *Store) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close flushes queued writes and closes the sinks.
func (s *Store) Close() error {
	s.closed.Do(func() {
		close(s.done)
	})
	s.wg.Wait()

	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
