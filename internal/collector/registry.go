package collector

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry holds the collectors the agent can poll, keyed by name.
type Registry struct {
	collectors map[string]Collector
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		collectors: make(map[string]Collector),
		logger:     logger,
	}
}

// Register adds a collector. Collectors that report themselves unavailable
// are still registered so that polling them keeps logging the failure.
func (r *Registry) Register(c Collector) {
	r.collectors[c.Name()] = c
	if c.IsAvailable() {
		r.logger.Info("Registered collector", zap.String("name", c.Name()))
	} else {
		r.logger.Warn("Collector registered but not available on this host",
			zap.String("name", c.Name()))
	}
}

// Get returns the collector registered under name.
func (r *Registry) Get(name string) (Collector, error) {
	c, ok := r.collectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown collector %q (registered: %v)", name, r.Names())
	}
	return c, nil
}

// Names returns the registered collector names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
