package sagas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type trace struct {
	calls []string
}

func step(t *trace, name string, err error, compensable bool) Step[*trace] {
	s := Step[*trace]{
		Name: name,
		Execute: func(ctx context.Context, plan *trace) error {
			plan.calls = append(plan.calls, "run:"+name)
			return err
		},
	}
	if compensable {
		s.Compensate = func(ctx context.Context, plan *trace) {
			plan.calls = append(plan.calls, "undo:"+name)
		}
	}
	return s
}

func TestSagaRunsStepsInOrder(t *testing.T) {
	plan := &trace{}
	saga := New[*trace]("ordered", zap.NewNop()).
		Then(step(plan, "first", nil, true)).
		Then(step(plan, "second", nil, false)).
		Then(step(plan, "third", nil, true))

	require.NoError(t, saga.Execute(context.Background(), plan))
	assert.Equal(t, []string{"run:first", "run:second", "run:third"}, plan.calls)
}

func TestSagaCompensatesInReverse(t *testing.T) {
	plan := &trace{}
	boom := errors.New("boom")
	saga := New[*trace]("failing", zap.NewNop()).
		Then(step(plan, "first", nil, true)).
		Then(step(plan, "second", nil, true)).
		Then(step(plan, "third", boom, true))

	err := saga.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing: third")

	// The failed step itself is not compensated, only its predecessors
	assert.Equal(t, []string{
		"run:first", "run:second", "run:third",
		"undo:second", "undo:first",
	}, plan.calls)
}

func TestSagaSkipsMissingCompensations(t *testing.T) {
	plan := &trace{}
	saga := New[*trace]("gappy", zap.NewNop()).
		Then(step(plan, "first", nil, true)).
		Then(step(plan, "second", nil, false)).
		Then(step(plan, "third", errors.New("late failure"), true))

	require.Error(t, saga.Execute(context.Background(), plan))
	assert.Equal(t, []string{
		"run:first", "run:second", "run:third",
		"undo:first",
	}, plan.calls)
}

func TestSagaFirstStepFailureUndoesNothing(t *testing.T) {
	plan := &trace{}
	saga := New[*trace]("immediate", zap.NewNop()).
		Then(step(plan, "first", errors.New("no good"), true)).
		Then(step(plan, "second", nil, true))

	require.Error(t, saga.Execute(context.Background(), plan))
	assert.Equal(t, []string{"run:first"}, plan.calls)
}
