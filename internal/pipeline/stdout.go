package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/Guliveer/dstat-agent/internal/models"
)

// StdoutSink writes one JSON object per line.
type StdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdoutSink creates a sink writing JSON lines to w.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{enc: json.NewEncoder(w)}
}

// Name returns the sink identifier.
func (s *StdoutSink) Name() string { return "stdout" }

// Write encodes every event as a line.
func (s *StdoutSink) Write(_ context.Context, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if err := s.enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
