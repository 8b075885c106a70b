package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteConfig holds settings for the remote HTTP sink.
type RemoteConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// DefaultRemoteConfig returns the default remote sink configuration.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Timeout: 10 * time.Second,
	}
}

// RemoteSink POSTs record bodies to a configured endpoint. Non-success
// responses are reported as errors; the store logs them and does not retry.
type RemoteSink struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewRemoteSink creates a remote HTTP sink.
func NewRemoteSink(cfg RemoteConfig) (*RemoteSink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote sink: no endpoint configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteConfig().Timeout
	}
	return &RemoteSink{
		endpoint: cfg.Endpoint,
		headers:  cfg.Headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Put POSTs the record body. The storage key travels in a header so the
// endpoint can file the record without parsing the body.
func (s *RemoteSink) Put(ctx context.Context, key string, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewReader(value))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Record-Key", key)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote sink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote sink returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close releases idle connections.
func (s *RemoteSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
