package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	puts   map[string][]byte
	failAll bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{puts: make(map[string][]byte)}
}

func (f *fakeSink) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("sink down")
	}
	f.puts[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func TestKey(t *testing.T) {
	got := Key(CategoryNetwork, "abc-123", 1700000000123)
	want := "network_abc-123_1700000000123"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestSplitKey(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		cat, sid, ts, err := splitKey(Key(CategorySuspicious, "sess_with_underscores", 42))
		if err != nil {
			t.Fatalf("splitKey() error = %v", err)
		}
		if cat != "suspicious" || sid != "sess_with_underscores" || ts != 42 {
			t.Errorf("splitKey() = %q %q %d", cat, sid, ts)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, _, _, err := splitKey("nounderscore"); err == nil {
			t.Error("splitKey() accepted malformed key")
		}
	})
}

func TestBuffer(t *testing.T) {
	t.Run("append and snapshot order", func(t *testing.T) {
		b := NewBuffer(8)
		for i := 0; i < 5; i++ {
			b.Append(Record{SessionID: "s", Timestamp: int64(i)})
		}
		snap := b.Snapshot()
		if len(snap) != 5 {
			t.Fatalf("len(Snapshot()) = %d, want 5", len(snap))
		}
		for i, rec := range snap {
			if rec.Timestamp != int64(i) {
				t.Errorf("snapshot[%d].Timestamp = %d, want %d", i, rec.Timestamp, i)
			}
		}
	})

	t.Run("evicts oldest when full", func(t *testing.T) {
		b := NewBuffer(3)
		for i := 0; i < 5; i++ {
			b.Append(Record{Timestamp: int64(i)})
		}
		snap := b.Snapshot()
		if len(snap) != 3 {
			t.Fatalf("len = %d, want 3", len(snap))
		}
		if snap[0].Timestamp != 2 || snap[2].Timestamp != 4 {
			t.Errorf("snapshot = %v, want timestamps 2..4", snap)
		}
		if m := b.Metrics(); m.Evicted != 2 || m.Appended != 5 {
			t.Errorf("Metrics() = %+v", m)
		}
	})
}

func TestStore_Persist(t *testing.T) {
	sink := newFakeSink()
	s := New(Config{BufferSize: 100, QueueSize: 16}, []Sink{sink}, nil)

	s.Persist(CategoryDOM, "sess1", 10, map[string]any{"type": "click"})
	s.Persist(CategoryDOM, "sess1", 20, map[string]any{"type": "scroll"})

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := sink.len(); got != 2 {
		t.Errorf("sink received %d records, want 2", got)
	}
	if _, ok := sink.puts["dom_sess1_10"]; !ok {
		t.Error("missing record dom_sess1_10")
	}

	buffered := s.Buffered()
	if len(buffered) != 2 {
		t.Errorf("Buffered() = %d records, want 2", len(buffered))
	}
}

func TestStore_SinkFailureDoesNotPropagate(t *testing.T) {
	sink := newFakeSink()
	sink.failAll = true
	s := New(Config{}, []Sink{sink}, nil)

	// Must not panic or block the caller.
	s.Persist(CategorySuspicious, "sess1", 1, map[string]any{"severity": 1.0})
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The in-memory record survives the sink failure.
	if len(s.Buffered()) != 1 {
		t.Errorf("Buffered() = %d records, want 1", len(s.Buffered()))
	}
}

func TestRemoteSink(t *testing.T) {
	t.Run("posts record body", func(t *testing.T) {
		var gotKey string
		var gotBody []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-Record-Key")
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			gotBody = buf
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		sink, err := NewRemoteSink(RemoteConfig{Endpoint: srv.URL})
		if err != nil {
			t.Fatalf("NewRemoteSink() error = %v", err)
		}
		defer sink.Close()

		if err := sink.Put(context.Background(), "dom_s_1", []byte(`{"a":1}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if gotKey != "dom_s_1" {
			t.Errorf("key header = %q", gotKey)
		}
		if string(gotBody) != `{"a":1}` {
			t.Errorf("body = %q", gotBody)
		}
	})

	t.Run("non-success is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		sink, err := NewRemoteSink(RemoteConfig{Endpoint: srv.URL})
		if err != nil {
			t.Fatalf("NewRemoteSink() error = %v", err)
		}
		defer sink.Close()

		if err := sink.Put(context.Background(), "k", []byte(`{}`)); err == nil {
			t.Error("Put() error = nil, want non-success error")
		}
	})

	t.Run("requires endpoint", func(t *testing.T) {
		if _, err := NewRemoteSink(RemoteConfig{}); err == nil {
			t.Error("NewRemoteSink() accepted empty endpoint")
		}
	})
}

func TestSQLiteSink(t *testing.T) {
	path := t.TempDir() + "/records.db"
	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("NewSQLiteSink() error = %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		key := Key(CategoryDOM, "sess1", int64(i*10))
		value := []byte(fmt.Sprintf(`{"i":%d}`, i))
		if err := sink.Put(ctx, key, value); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := sink.Put(ctx, Key(CategoryNetwork, "sess1", 5), []byte(`{"n":true}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	records, err := sink.SessionRecords(ctx, CategoryDOM, "sess1")
	if err != nil {
		t.Fatalf("SessionRecords() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("SessionRecords() = %d records, want 3", len(records))
	}
	if string(records[0]) != `{"i":0}` {
		t.Errorf("first record = %s, want ordered by ts", records[0])
	}

	t.Run("invalid json rejected", func(t *testing.T) {
		err := sink.Put(ctx, Key(CategoryDOM, "sess1", 99), []byte(`not json`))
		if err == nil {
			t.Error("Put() accepted invalid JSON")
		}
	})

	t.Run("put is idempotent per key", func(t *testing.T) {
		key := Key(CategoryDOM, "sess1", 0)
		if err := sink.Put(ctx, key, []byte(`{"i":0}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		records, _ := sink.SessionRecords(ctx, CategoryDOM, "sess1")
		if len(records) != 3 {
			t.Errorf("duplicate key grew table to %d records", len(records))
		}
	})
}

func TestStore_CloseFlushesQueue(t *testing.T) {
	sink := newFakeSink()
	s := New(Config{QueueSize: 128}, []Sink{sink}, nil)

	for i := 0; i < 50; i++ {
		s.Persist(CategoryDOM, "sess", int64(i), map[string]any{"i": i})
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Everything queued before Close must reach the sink.
	deadline := time.Now().Add(time.Second)
	for sink.len() < 50 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.len(); got != 50 {
		t.Errorf("sink received %d records, want 50", got)
	}
}
