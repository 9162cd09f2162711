package spyglass

import (
	"context"
	"fmt"
)

// Run executes the main observation loop: survey → observe → reset.
func Run(ctx context.Context, r *Robot) error {
	r.logger.Info("Starting observation loop")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Shutting down")
			return nil
		default:
		}

		if err := runCycle(ctx, r); err != nil {
			r.logger.Errorf("Cycle failed: %v", err)
			r.logger.Info("Retrying full cycle...")
			continue
		}

		r.logger.Infof("Cycle complete; %d target(s) observed so far", r.state.TargetsObserved)
	}
}

// runCycle executes a single survey-to-reset observation cycle.
func runCycle(ctx context.Context, r *Robot) error {
	steps := []struct {
		name string
		fn   func(context.Context, *Robot) error
	}{
		{"Survey", Survey},
		{"Observe", Observe},
		{"Reset", Reset},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Infof("=== %s ===", step.name)
		if err := step.fn(ctx, r); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return nil
}
