// Package sagas provides the compensation scaffolding for operations
// that mutate more than one store and must land as all or nothing.
package sagas

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Step is one stage of a saga. Execute advances the plan; Compensate
// undoes the step's mutations when a later step fails. Steps without a
// Compensate are skipped during rollback.
type Step[T any] struct {
	Name       string
	Execute    func(ctx context.Context, plan T) error
	Compensate func(ctx context.Context, plan T)
}

// Saga runs its steps in order against a shared plan and compensates
// completed steps in reverse when one fails. It carries no retry or
// persistence machinery: the engines run sagas under the store locks,
// where a step either succeeds immediately or the whole operation is
// abandoned.
type Saga[T any] struct {
	name   string
	steps  []Step[T]
	logger *zap.Logger
}

// New creates an empty saga
func New[T any](name string, logger *zap.Logger) *Saga[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga[T]{name: name, logger: logger}
}

// Then appends a step and returns the saga for chaining
func (s *Saga[T]) Then(step Step[T]) *Saga[T] {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs every step against the plan. The first failure unwinds
// the steps already completed, in reverse order, and is returned
// wrapped with the saga and step names. Typed errors survive the wrap.
func (s *Saga[T]) Execute(ctx context.Context, plan T) error {
	for i, step := range s.steps {
		if err := step.Execute(ctx, plan); err != nil {
			s.logger.Warn("Saga step failed, compensating",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Int("completedSteps", i),
				zap.Error(err),
			)
			s.unwind(ctx, plan, i-1)
			return fmt.Errorf("%s: %s: %w", s.name, step.Name, err)
		}

		s.logger.Debug("Saga step completed",
			zap.String("saga", s.name),
			zap.String("step", step.Name),
		)
	}
	return nil
}

// unwind compensates steps from the given index down to the first
func (s *Saga[T]) unwind(ctx context.Context, plan T, from int) {
	for i := from; i >= 0; i-- {
		if s.steps[i].Compensate == nil {
			continue
		}
		s.logger.Debug("Compensating saga step",
			zap.String("saga", s.name),
			zap.String("step", s.steps[i].Name),
		)
		s.steps[i].Compensate(ctx, plan)
	}
}
