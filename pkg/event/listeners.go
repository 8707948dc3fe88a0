package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/restwire/pkg/logging"
)

// LogListener writes every event to a logger.
type LogListener struct {
	log   *slog.Logger
	level slog.Level
}

// NewLogListener creates a LogListener logging at level.
func NewLogListener(logger *slog.Logger, level slog.Level) *LogListener {
	return &LogListener{log: logging.OrNop(logger), level: level}
}

// Handle logs e and never fails.
func (l *LogListener) Handle(ctx context.Context, e *Event) error {
	attrs := []any{
		"resource", e.Resource,
		"entity", e.EntityClass,
	}
	if e.ID != "" {
		attrs = append(attrs, "id", e.ID)
	}
	if len(e.Params) > 0 {
		attrs = append(attrs, "params", e.Params)
	}
	if sub, ok := e.Identity["sub"]; ok {
		attrs = append(attrs, "sub", sub)
	}
	l.log.Log(ctx, l.level, e.Name, attrs...)
	return nil
}

// ErrRejected is wrapped by GuardListener denials.
var ErrRejected = errors.New("rejected by guard")

// GuardListener is an allow rule: it evaluates a boolean expression against
// each matching event and rejects the event when the result is false. The
// expression sees event (Name, Operation, Resource, ID, Params, Data) and the
// caller's validated claims, which resources resolve before pre events fire.
//
//	event.Operation != "delete" || claims.role == "admin"
type GuardListener struct {
	events  map[string]bool
	program *vm.Program
	message string
}

type guardEnv struct {
	Event  guardEvent     `expr:"event"`
	Claims map[string]any `expr:"claims"`
}

type guardEvent struct {
	Name      string
	Operation string
	Resource  string
	ID        string
	Params    map[string]string
	Data      map[string]any
}

// NewGuardListener compiles condition. When events is empty the guard runs
// for every event.
func NewGuardListener(condition, message string, events []string) (*GuardListener, error) {
	program, err := expr.Compile(condition, expr.Env(guardEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling guard condition: %w", err)
	}
	g := &GuardListener{program: program, message: message}
	if len(events) > 0 {
		g.events = make(map[string]bool, len(events))
		for _, name := range events {
			g.events[name] = true
		}
	}
	if g.message == "" {
		g.message = condition
	}
	return g, nil
}

// Handle rejects e when the condition evaluates to false.
func (g *GuardListener) Handle(_ context.Context, e *Event) error {
	if g.events != nil && !g.events[e.Name] {
		return nil
	}

	claims := e.Identity
	if claims == nil {
		claims = map[string]any{}
	}
	out, err := expr.Run(g.program, guardEnv{
		Event: guardEvent{
			Name:      e.Name,
			Operation: e.Operation,
			Resource:  e.Resource,
			ID:        e.ID,
			Params:    e.Params,
			Data:      e.Data,
		},
		Claims: claims,
	})
	if err != nil {
		return fmt.Errorf("evaluating guard: %w", err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("%w: %s", ErrRejected, g.message)
	}
	return nil
}
