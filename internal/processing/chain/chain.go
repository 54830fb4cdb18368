package chain

import (
	"context"
	"fmt"
	"time"

	"improc/internal/raster"
)

type ProcessingStep interface {
	Apply(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error)
	Name() string
	ShouldExecute(params map[string]interface{}) bool
}

// StepObserver is notified after every step that ran.
type StepObserver func(step string, elapsed time.Duration)

type ProcessingChain struct {
	steps    []ProcessingStep
	observer StepObserver
}

func NewProcessingChain(steps []ProcessingStep) *ProcessingChain {
	return &ProcessingChain{
		steps: steps,
	}
}

// Observe registers fn to receive step timings.
func (pc *ProcessingChain) Observe(fn StepObserver) {
	pc.observer = fn
}

// Execute runs the steps whose ShouldExecute accepts params, feeding each
// result into the next step. Intermediate images are dropped as soon as the
// following step has produced its output. The input is never returned: when
// no step runs the result is a copy.
func (pc *ProcessingChain) Execute(ctx context.Context, input *raster.Image, params map[string]interface{}) (*raster.Image, error) {
	if err := raster.Validate(input); err != nil {
		return nil, err
	}
	current := input

	for _, step := range pc.steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !step.ShouldExecute(params) {
			continue
		}

		start := time.Now()
		result, err := step.Apply(ctx, current, params)
		if err != nil {
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}
		if pc.observer != nil {
			pc.observer(step.Name(), time.Since(start))
		}

		current = result
	}

	if current == input {
		return input.Clone(), nil
	}
	return current, nil
}
