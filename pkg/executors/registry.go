// Package executors implements one StepExecutor per AI-backed step kind.
package executors

import (
	"fmt"

	"github.com/a-kuz/shader-maker/pkg/models"
	"github.com/a-kuz/shader-maker/pkg/protocol"
)

// Registry maps step kinds to their executors. Adding a step kind means
// registering one more executor, not growing a switch in the runner.
type Registry struct {
	executors map[models.StepKind]protocol.StepExecutor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.StepKind]protocol.StepExecutor)}
}

func (r *Registry) Register(executor protocol.StepExecutor) {
	r.executors[executor.Kind()] = executor
}

func (r *Registry) Executor(kind models.StepKind) (protocol.StepExecutor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("step kind %q not registered", kind)
	}

	return executor, nil
}

// NewDefaultRegistry wires the four AI-backed executors over a single
// client implementing all collaborator contracts.
func NewDefaultRegistry(generator protocol.Generator, evaluator protocol.Evaluator, improver protocol.Improver, fixer protocol.Fixer) *Registry {
	registry := NewRegistry()
	registry.Register(NewGeneration(generator))
	registry.Register(NewEvaluation(evaluator))
	registry.Register(NewImprovement(improver))
	registry.Register(NewFix(fixer))

	return registry
}
