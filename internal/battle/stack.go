package battle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errStackEmpty = errors.New("stack empty")

// StepFunc executes one step on behalf of the battle that owns the stack.
type StepFunc func(ctx context.Context, step Step) (StepResult, error)

// ExecutionStack is a LIFO of step descriptors. Current holds the step being executed so that a
// suspended step is retried on the next Execute while completed steps never run twice.
type ExecutionStack struct {
	mu      sync.Mutex
	Steps   []Step
	Current *Step
}

// Push adds a step to the top of the stack.
func (s *ExecutionStack) Push(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Steps = append(s.Steps, step)
}

// PushReverse pushes the steps so that they execute in the order given.
func (s *ExecutionStack) PushReverse(steps []Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		s.Steps = append(s.Steps, steps[i])
	}
}

// Pop removes the top step.
func (s *ExecutionStack) Pop() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Steps) == 0 {
		return Step{}, errStackEmpty
	}
	idx := len(s.Steps) - 1
	step := s.Steps[idx]
	s.Steps = s.Steps[:idx]
	return step, nil
}

// Peek returns the top step without removing it.
func (s *ExecutionStack) Peek() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Steps) == 0 {
		return Step{}, false
	}
	return s.Steps[len(s.Steps)-1], true
}

// List returns a copy of the pending steps (topmost last).
func (s *ExecutionStack) List() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make([]Step, len(s.Steps))
	copy(cpy, s.Steps)
	return cpy
}

// Len returns the number of pending steps, not counting Current.
func (s *ExecutionStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Steps)
}

// IsEmpty reports whether nothing is pending.
func (s *ExecutionStack) IsEmpty() bool {
	return s.Len() == 0
}

// IsExecuting reports whether a previous Execute was suspended part way.
func (s *ExecutionStack) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Current != nil || len(s.Steps) > 0
}

// Clear drops every pending step.
func (s *ExecutionStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Steps = nil
	s.Current = nil
}

func (s *ExecutionStack) truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < len(s.Steps) {
		s.Steps = s.Steps[:n]
	}
}

func (s *ExecutionStack) setCurrent(step *Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Current = step
}

// Execute runs steps until the stack is empty. A suspended step (or one failing with an
// interruption) stays Current, steps it pushed are discarded, and a wrapped ErrSuspended is
// returned. Any other error is returned as is and leaves the stack untouched.
func (s *ExecutionStack) Execute(ctx context.Context, run StepFunc) error {
	s.mu.Lock()
	if s.Current != nil {
		s.Steps = append(s.Steps, *s.Current)
		s.Current = nil
	}
	s.mu.Unlock()

	for {
		step, err := s.Pop()
		if errors.Is(err, errStackEmpty) {
			return nil
		}
		depth := s.Len()
		s.setCurrent(&step)

		result, err := run(ctx, step)
		var cause error
		if err != nil {
			if !isInterruption(err) {
				return fmt.Errorf("step %s: %w", step.Kind, err)
			}
			result, cause = StepSuspended, err
		}
		if result == StepSuspended {
			s.truncate(depth)
			if cause != nil {
				return fmt.Errorf("%w at %s: %w", ErrSuspended, step.Kind, cause)
			}
			return fmt.Errorf("%w at %s", ErrSuspended, step.Kind)
		}
		s.setCurrent(nil)
	}
}
