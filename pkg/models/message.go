package models

import "time"

type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`  // Business data
	Metadata  Metadata               `json:"metadata"` // Transport metadata (trace_id, routing attributes)
}

type Metadata struct {
	TraceID    string                 `json:"trace_id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (m *Metadata) SetAttribute(key string, value interface{}) {
	if m.Attributes == nil {
		m.Attributes = make(map[string]interface{})
	}
	m.Attributes[key] = value
}

func (m Metadata) StringAttribute(key string) (string, bool) {
	v, ok := m.Attributes[key].(string)
	return v, ok
}
