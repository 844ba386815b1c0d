// Package collector defines the Collector interface and the sources that
// produce metric records for one polling cycle.
package collector

import (
	"context"

	"github.com/Guliveer/dstat-agent/internal/models"
)

// Collector is the interface that all record sources must implement.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect runs one sampling cycle and returns its records.
	// A non-nil error means the cycle produced nothing usable.
	Collect(ctx context.Context) ([]models.MetricRecord, error)

	// IsAvailable checks if this collector can run on the current host.
	IsAvailable() bool
}
