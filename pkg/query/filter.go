package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/restwire/pkg/event"
)

// AliasDefaultFilter is the create filter used when none is declared.
const AliasDefaultFilter = "default"

// ErrRejected is returned when a create filter refuses a payload.
var ErrRejected = errors.New("payload rejected")

// CreateFilter vets a payload before it is persisted.
type CreateFilter interface {
	Collaborators
	Filter(ctx context.Context, e *event.Event, entityClass string, data map[string]any) (map[string]any, error)
}

// DefaultCreateFilter passes payloads through unchanged.
type DefaultCreateFilter struct{ Base }

// Filter returns data as is.
func (f *DefaultCreateFilter) Filter(_ context.Context, _ *event.Event, _ string, data map[string]any) (map[string]any, error) {
	return data, nil
}

// ExpressionCreateFilter checks a condition and stamps computed fields.
// Expressions see data (the payload), entity (the entity class) and claims
// (the caller's token claims, empty when anonymous).
//
//	condition: data.name != "" && claims.sub != nil
//	assign:
//	  owner: claims.sub
type ExpressionCreateFilter struct {
	Base
	condition *vm.Program
	source    string
	fields    []string
	assign    map[string]*vm.Program
}

// NewExpressionCreateFilter compiles condition (optional) and the assign
// expressions.
func NewExpressionCreateFilter(condition string, assign map[string]string) (*ExpressionCreateFilter, error) {
	f := &ExpressionCreateFilter{source: condition, assign: make(map[string]*vm.Program, len(assign))}
	env := filterEnv(nil, "", nil)

	if condition != "" {
		program, err := expr.Compile(condition, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compiling condition: %w", err)
		}
		f.condition = program
	}

	for field, source := range assign {
		program, err := expr.Compile(source, expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("compiling assign %q: %w", field, err)
		}
		f.assign[field] = program
		f.fields = append(f.fields, field)
	}
	sort.Strings(f.fields)
	return f, nil
}

// Filter evaluates the condition, then applies assignments in field order.
// A token on the event is validated when an authorizer is present; an
// invalid token is an error, a missing one leaves claims empty.
func (f *ExpressionCreateFilter) Filter(_ context.Context, e *event.Event, entityClass string, data map[string]any) (map[string]any, error) {
	claims := map[string]any{}
	if e != nil && (e.Identity != nil || (e.Token != "" && f.authorizer != nil)) {
		c, err := Identity(e, f.authorizer)
		if err != nil {
			return nil, err
		}
		claims = c
	}

	out := make(map[string]any, len(data)+len(f.fields))
	for k, v := range data {
		out[k] = v
	}
	env := filterEnv(out, entityClass, claims)

	if f.condition != nil {
		ok, err := expr.Run(f.condition, env)
		if err != nil {
			return nil, fmt.Errorf("evaluating condition: %w", err)
		}
		if b, _ := ok.(bool); !b {
			return nil, fmt.Errorf("%w: %s", ErrRejected, f.source)
		}
	}

	for _, field := range f.fields {
		v, err := expr.Run(f.assign[field], env)
		if err != nil {
			return nil, fmt.Errorf("evaluating assign %q: %w", field, err)
		}
		out[field] = v
	}
	return out, nil
}

func filterEnv(data map[string]any, entity string, claims map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	if claims == nil {
		claims = map[string]any{}
	}
	return map[string]any{
		"data":   data,
		"entity": entity,
		"claims": claims,
	}
}
