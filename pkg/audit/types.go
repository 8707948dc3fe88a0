// Package audit records resource operations as JSON lines.
//
// A Listener attached to a resource turns every event it sees into an Entry
// and hands it to a Logger. Entries carry who did what to which entity, never
// the payload values themselves.
package audit

import "time"

// Entry is a single audit record.
type Entry struct {
	// Sequence is a monotonically increasing number per logger.
	Sequence int64 `json:"sequence"`

	Timestamp time.Time `json:"timestamp"`

	// TraceID correlates the entry with the span active when the event fired.
	TraceID string `json:"traceId,omitempty"`

	// Event is the event name, e.g. "create.post".
	Event     string `json:"event"`
	Operation string `json:"operation"`

	Resource    string `json:"resource"`
	EntityClass string `json:"entityClass,omitempty"`
	ID          string `json:"id,omitempty"`

	// Subject is the "sub" claim of the caller, when known.
	Subject string `json:"subject,omitempty"`

	Params map[string]string `json:"params,omitempty"`

	// Fields lists the payload keys, sorted. Values are not recorded.
	Fields []string `json:"fields,omitempty"`
}
