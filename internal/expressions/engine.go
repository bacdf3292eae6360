package expressions

import (
	"context"
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Engine evaluates expressions attached to nodes and declarative converters.
// Three implementations: CEL (conditions), GoJQ (transforms), Expr (arithmetic and logic).
type Engine interface {
	Name() string
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines is a fixed set of engines addressable by name.
type Engines struct {
	byName map[string]Engine
}

// NewEngines builds the default set: expr, cel and jq.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewEnginesFrom(NewExprEngine(), celEngine, NewGoJQEngine()), nil
}

// NewEnginesFrom builds a set from explicit engines. Later engines with
// the same name replace earlier ones.
func NewEnginesFrom(engines ...Engine) *Engines {
	e := &Engines{byName: make(map[string]Engine, len(engines))}
	for _, eng := range engines {
		e.byName[eng.Name()] = eng
	}
	return e
}

// Get returns the engine registered under name.
func (e *Engines) Get(name string) (Engine, error) {
	eng, ok := e.byName[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown expression engine %q; available: %v", name, e.Names())
	}
	return eng, nil
}

// Names returns the registered engine names, sorted.
func (e *Engines) Names() []string {
	names := make([]string, 0, len(e.byName))
	for name := range e.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
