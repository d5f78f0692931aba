package provision

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Step is one forward action and the action that undoes it. Undo may be nil
// for steps with nothing to compensate.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// StepError reports which step failed. Err is the step's own error; failures
// of compensating actions are never reported through it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Saga runs steps in order and, on the first failure, undoes every completed
// step in reverse order. Compensation is best-effort: undo errors are logged,
// not retried.
type Saga struct {
	logger *zap.SugaredLogger
	steps  []Step
}

func NewSaga(logger *zap.SugaredLogger, steps ...Step) *Saga {
	return &Saga{logger: logger, steps: steps}
}

func (s *Saga) Add(step Step) {
	s.steps = append(s.steps, step)
}

func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Do(ctx); err != nil {
			s.compensate(ctx, i)
			return &StepError{Step: step.Name, Err: err}
		}
	}
	return nil
}

// compensate undoes steps [0, failed) newest first. Compensation must finish
// even if the caller gave up, so cancellation is detached.
func (s *Saga) compensate(ctx context.Context, failed int) {
	ctx = context.WithoutCancel(ctx)
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			s.logger.Warnw("compensation failed, rows may be orphaned", "step", step.Name, "err", err)
			continue
		}
		s.logger.Debugw("compensated", "step", step.Name)
	}
}
