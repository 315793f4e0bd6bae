package chains

import (
	"encoding/json"
)

// Trust passes custom wallet methods through untouched: the payload schema
// belongs to the application, the core only routes it.
type Trust struct {
	OnRequest func(id int64, event Event, params json.RawMessage, timestamp *uint64)
}

func (h *Trust) Handle(event Event, id int64, params json.RawMessage, timestamp *uint64) error {
	if h.OnRequest != nil {
		h.OnRequest(id, event, params, timestamp)
	}
	return nil
}
