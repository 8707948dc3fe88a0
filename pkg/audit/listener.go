package audit

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/getmockd/restwire/pkg/event"
)

// Listener is an event.Listener that writes every matching event to a
// Logger. It never rejects an operation; logging failures are returned only
// when Strict is set.
type Listener struct {
	logger Logger
	events map[string]bool
	now    func() time.Time

	// Strict makes a failed write fail the operation.
	Strict bool
}

var _ event.Listener = (*Listener)(nil)

// NewListener creates a Listener. With no event names every event is logged.
func NewListener(logger Logger, events ...string) *Listener {
	if logger == nil {
		logger = NoOpLogger{}
	}
	l := &Listener{logger: logger, now: time.Now}
	if len(events) > 0 {
		l.events = make(map[string]bool, len(events))
		for _, name := range events {
			l.events[name] = true
		}
	}
	return l
}

// Handle records e.
func (l *Listener) Handle(ctx context.Context, e *event.Event) error {
	if l.events != nil && !l.events[e.Name] {
		return nil
	}

	entry := Entry{
		Timestamp:   l.now().UTC(),
		Event:       e.Name,
		Operation:   e.Operation,
		Resource:    e.Resource,
		EntityClass: e.EntityClass,
		ID:          e.ID,
		Params:      e.Params,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		entry.TraceID = sc.TraceID().String()
	}
	if sub, ok := e.Identity["sub"].(string); ok {
		entry.Subject = sub
	}
	if len(e.Data) > 0 {
		entry.Fields = make([]string, 0, len(e.Data))
		for k := range e.Data {
			entry.Fields = append(entry.Fields, k)
		}
		sort.Strings(entry.Fields)
	}

	if err := l.logger.Log(entry); err != nil && l.Strict {
		return err
	}
	return nil
}
