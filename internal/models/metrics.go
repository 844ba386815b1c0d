// Package models defines the record and event structures used throughout the agent.
// Events are serialized to JSON for the stdout, HTTP and Valkey outputs.
package models

import (
	"encoding/json"
	"time"
)

// MetricRecord is one recognised sampler value for one collection cycle.
// Value is the raw CSV cell text; it is never parsed to a number.
type MetricRecord struct {
	Stat  string `json:"stat"`
	Value string `json:"value"`
	Host  string `json:"host"`
}

// Event is a MetricRecord decorated for delivery.
type Event struct {
	Timestamp time.Time
	Version   string
	Type      string
	Tags      []string
	Fields    map[string]string
	MetricRecord
}

// MarshalJSON flattens the event into a single object. Extra fields are
// merged at the top level but never replace a built-in key.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 8+len(e.Fields))
	for k, v := range e.Fields {
		out[k] = v
	}
	out["@timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	out["@version"] = e.Version
	out["stat"] = e.Stat
	out["value"] = e.Value
	out["host"] = e.Host
	if e.Type != "" {
		out["type"] = e.Type
	}
	if len(e.Tags) > 0 {
		out["tags"] = e.Tags
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores an event written by MarshalJSON. Unknown keys are
// collected into Fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Event{}
	for k, v := range raw {
		var err error
		switch k {
		case "@timestamp":
			var ts string
			if err = json.Unmarshal(v, &ts); err == nil {
				e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
			}
		case "@version":
			err = json.Unmarshal(v, &e.Version)
		case "stat":
			err = json.Unmarshal(v, &e.Stat)
		case "value":
			err = json.Unmarshal(v, &e.Value)
		case "host":
			err = json.Unmarshal(v, &e.Host)
		case "type":
			err = json.Unmarshal(v, &e.Type)
		case "tags":
			err = json.Unmarshal(v, &e.Tags)
		default:
			var s string
			if err = json.Unmarshal(v, &s); err == nil {
				if e.Fields == nil {
					e.Fields = make(map[string]string)
				}
				e.Fields[k] = s
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// EventBatch is the payload sent to the HTTP ingest endpoint.
type EventBatch struct {
	BatchID string  `json:"batch_id"`
	AgentID string  `json:"agent_id"`
	Events  []Event `json:"events"`
}
