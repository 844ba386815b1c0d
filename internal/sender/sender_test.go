package sender

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/buffer"
	"github.com/Guliveer/dstat-agent/internal/config"
	"github.com/Guliveer/dstat-agent/internal/models"
)

func testEvents() []models.Event {
	return []models.Event{
		{Version: "1", MetricRecord: models.MetricRecord{Stat: "cpu-usr", Value: "10", Host: "h1"}},
		{Version: "1", MetricRecord: models.MetricRecord{Stat: "cpu-sys", Value: "5", Host: "h1"}},
	}
}

func newTestSender(t *testing.T, url string) (*Sender, *buffer.Buffer) {
	t.Helper()
	buf, err := buffer.New(t.TempDir(), 50, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s := New(config.HTTPConfig{Enabled: true, URL: url, Token: "secret"}, "agent-1", zap.NewNop(), buf)
	s.retryDelay = time.Millisecond
	return s, buf
}

func TestWrite_Success(t *testing.T) {
	var got models.EventBatch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Encoding") != "gzip" {
			t.Errorf("Content-Encoding = %q", r.Header.Get("Content-Encoding"))
		}
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("gzip reader: %v", err)
			return
		}
		if err := json.NewDecoder(gz).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, buf := newTestSender(t, srv.URL)
	if err := s.Write(context.Background(), testEvents()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if got.AgentID != "agent-1" || got.BatchID == "" {
		t.Errorf("batch ids = %q/%q", got.AgentID, got.BatchID)
	}
	if len(got.Events) != 2 || got.Events[1].Stat != "cpu-sys" {
		t.Errorf("events = %+v", got.Events)
	}
	if buf.Count() != 0 {
		t.Errorf("buffer count = %d, want 0", buf.Count())
	}
}

func TestWrite_RetriesThenBuffers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, buf := newTestSender(t, srv.URL)
	if err := s.Write(context.Background(), testEvents()); err == nil {
		t.Fatal("Write() error = nil, want error")
	}

	if got := atomic.LoadInt32(&calls); got != maxRetries+1 {
		t.Errorf("server calls = %d, want %d", got, maxRetries+1)
	}
	if buf.Count() != 1 {
		t.Errorf("buffer count = %d, want 1", buf.Count())
	}
}

func TestWrite_RateLimitedBuffersImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, buf := newTestSender(t, srv.URL)
	err := s.Write(context.Background(), testEvents())
	if !isRateLimited(err) {
		t.Fatalf("Write() error = %v, want rate limit", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
	if buf.Count() != 1 {
		t.Errorf("buffer count = %d, want 1", buf.Count())
	}
}

func TestFlushBuffer(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, buf := newTestSender(t, srv.URL)
	if err := buf.Store(testEvents()); err != nil {
		t.Fatal(err)
	}

	s.FlushBuffer(context.Background())

	if got := atomic.LoadInt32(&received); got != 1 {
		t.Errorf("server received %d batches, want 1", got)
	}
	if buf.Count() != 0 {
		t.Errorf("buffer count = %d, want 0", buf.Count())
	}
}
