// Package sender implements the HTTP batch output with retry logic.
// It marshals event batches to JSON, compresses with gzip, and POSTs
// them to the configured endpoint with exponential backoff on failure.
package sender

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/buffer"
	"github.com/Guliveer/dstat-agent/internal/config"
	"github.com/Guliveer/dstat-agent/internal/models"
)

const (
	// maxRetries is the maximum number of retry attempts before buffering locally.
	maxRetries = 3

	// baseRetryDelay is the base delay for exponential backoff between retries.
	baseRetryDelay = 2 * time.Second

	// requestTimeout is the HTTP request timeout for each send attempt.
	requestTimeout = 10 * time.Second
)

// Sender handles batch transmission of events with retry logic and local
// buffering as a fallback when the endpoint is unreachable.
type Sender struct {
	client     *http.Client
	cfg        config.HTTPConfig
	agentID    string
	logger     *zap.Logger
	buf        *buffer.Buffer
	retryDelay time.Duration
}

// New creates a new Sender. agentID identifies this agent instance in
// every payload; buf may be nil to drop undeliverable batches.
func New(cfg config.HTTPConfig, agentID string, logger *zap.Logger, buf *buffer.Buffer) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: requestTimeout,
		},
		cfg:        cfg,
		agentID:    agentID,
		logger:     logger.Named("http"),
		buf:        buf,
		retryDelay: baseRetryDelay,
	}
}

// Name returns the sink identifier.
func (s *Sender) Name() string { return "http" }

// Write attempts to send a batch of events. On failure after all retries,
// the batch is buffered locally and the last error is returned.
func (s *Sender) Write(ctx context.Context, events []models.Event) error {
	err := s.send(ctx, events)
	if err != nil {
		s.bufferBatch(events)
	}
	return err
}

func (s *Sender) send(ctx context.Context, events []models.Event) error {
	batch := models.EventBatch{
		BatchID: uuid.NewString(),
		AgentID: s.agentID,
		Events:  events,
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	// Compress with gzip
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("compress batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalize gzip compression: %w", err)
	}

	// Retry loop with exponential backoff
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * s.retryDelay
			s.logger.Warn("Retrying send",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = s.doSend(ctx, compressed.Bytes())
		if lastErr == nil {
			s.logger.Debug("Batch sent successfully",
				zap.String("batch_id", batch.BatchID),
				zap.Int("events", len(events)))
			return nil
		}

		// Rate limited: buffer immediately without further retries
		if isRateLimited(lastErr) {
			s.logger.Warn("Rate limited by server, buffering batch", zap.Error(lastErr))
			return lastErr
		}

		s.logger.Warn("Send failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}

	return fmt.Errorf("all retries exhausted: %w", lastErr)
}

// doSend performs a single HTTP POST to the endpoint.
func (s *Sender) doSend(ctx context.Context, compressedData []byte) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.cfg.URL,
		bytes.NewReader(compressedData),
	)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{statusCode: resp.StatusCode}
	}

	return fmt.Errorf("server returned %d", resp.StatusCode)
}

// bufferBatch stores a failed batch in the local file buffer.
func (s *Sender) bufferBatch(events []models.Event) {
	if s.buf == nil {
		s.logger.Warn("No buffer available, dropping events",
			zap.Int("count", len(events)))
		return
	}
	if err := s.buf.Store(events); err != nil {
		s.logger.Error("Failed to buffer events", zap.Error(err))
	}
}

// FlushBuffer attempts to send all previously buffered batches.
// Called on startup to drain batches stored during prior outages.
func (s *Sender) FlushBuffer(ctx context.Context) {
	if s.buf == nil {
		return
	}

	batches, err := s.buf.RetrieveAll()
	if err != nil {
		s.logger.Error("Failed to retrieve buffered events", zap.Error(err))
		return
	}

	if len(batches) == 0 {
		return
	}

	s.logger.Info("Flushing buffered events", zap.Int("batches", len(batches)))

	for _, batch := range batches {
		if err := s.Write(ctx, batch); err != nil {
			s.logger.Warn("Buffered batch re-queued", zap.Error(err))
		}
	}
}

// rateLimitError indicates the server returned HTTP 429.
type rateLimitError struct {
	statusCode int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%d)", e.statusCode)
}

// isRateLimited checks whether an error is a rate limit response.
func isRateLimited(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}
