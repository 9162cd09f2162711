package spyglass

import (
	"context"
	"fmt"
)

// Reset returns the arm to its home pose and clears the per-target state so
// the next cycle starts clean. The home move is planned once via DoPlan and
// replayed from cache on subsequent cycles.
func Reset(ctx context.Context, r *Robot) error {
	if err := r.cachedFreeMove(ctx, armName, HomePose, &r.homeTrajectory, "home_trajectory.json"); err != nil {
		r.logger.Warnf("Cached home move failed, falling back to recorded joints: %v", err)
		if err := r.moveArmDirectToJoints(ctx, HomeJoints); err != nil {
			return fmt.Errorf("return home: %w", err)
		}
	}

	if r.gripper != nil {
		if err := r.gripper.Open(ctx, nil); err != nil {
			r.logger.Warnf("Failed to open gripper during reset: %v", err)
		}
	}

	r.resetState()
	r.logger.Info("Reset complete")
	return nil
}
