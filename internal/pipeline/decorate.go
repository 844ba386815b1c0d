package pipeline

import (
	"time"

	"github.com/Guliveer/dstat-agent/internal/models"
)

// eventVersion is the event schema version written to @version.
const eventVersion = "1"

// Decorator stamps records with delivery metadata.
type Decorator struct {
	Type   string
	Tags   []string
	Fields map[string]string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Decorate turns a record into an event.
func (d Decorator) Decorate(r models.MetricRecord) models.Event {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	ev := models.Event{
		Timestamp:    now().UTC(),
		Version:      eventVersion,
		Type:         d.Type,
		MetricRecord: r,
	}
	if len(d.Tags) > 0 {
		ev.Tags = append([]string(nil), d.Tags...)
	}
	if len(d.Fields) > 0 {
		ev.Fields = make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			ev.Fields[k] = v
		}
	}
	return ev
}
