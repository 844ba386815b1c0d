package collector

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/models"
)

type stubCollector struct {
	name      string
	available bool
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Collect(context.Context) ([]models.MetricRecord, error) { return nil, nil }

func (s *stubCollector) IsAvailable() bool { return s.available }

func TestRegistry_KeepsUnavailableCollectors(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(&stubCollector{name: "dstat", available: false})
	r.Register(&stubCollector{name: "native", available: true})

	if got := r.Names(); !reflect.DeepEqual(got, []string{"dstat", "native"}) {
		t.Errorf("Names() = %v", got)
	}
	c, err := r.Get("dstat")
	if err != nil {
		t.Fatalf("Get(dstat) error = %v", err)
	}
	if c.IsAvailable() {
		t.Error("Get(dstat) returned the wrong collector")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	if _, err := r.Get("iostat"); err == nil {
		t.Error("Get(unknown) error = nil, want error")
	}
}
