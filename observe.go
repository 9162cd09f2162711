package spyglass

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/biotinker/spyglass/viewpoint"
	viz "github.com/viam-labs/motion-tools/client/client"
	"go.viam.com/rdk/spatialmath"
)

const maxObserveAttempts = 3

// Observe drives the camera to a feasible viewpoint from the visibility
// model and confirms the target is actually in view from there. Candidates
// are drawn in randomized order so repeated attempts do not hammer the same
// geometric cluster of viewpoints.
func Observe(ctx context.Context, r *Robot) error {
	if r.model == nil || !r.model.Has() {
		return fmt.Errorf("%w: run the survey step first", viewpoint.ErrNoViewpoints)
	}
	if r.state.TargetPose == nil {
		return fmt.Errorf("no target pose in state; run the survey step first")
	}

	scene := newLiveScene(ctx, r, r.state.Obstacles)
	viewpoints := r.model.Viewpoints()

	// Visualize the candidate camera poses in the target frame.
	worldPoses := make([]spatialmath.Pose, len(viewpoints))
	names := make([]string, len(viewpoints))
	for i, vp := range viewpoints {
		worldPoses[i] = spatialmath.Compose(r.state.TargetPose, vp)
		names[i] = fmt.Sprintf("viewpoint_%d", i)
	}
	if err := viz.DrawPoses(worldPoses, names, true); err != nil {
		r.logger.Warnf("Failed to draw viewpoint poses: %v", err)
	}

	//nolint:gosec
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	opts := viewpoint.DefaultConfig().Filter
	opts.Randomize = true

	for attempt := 1; attempt <= maxObserveAttempts; attempt++ {
		r.state.ViewAttempts = attempt
		r.logger.Infof("Observation attempt %d/%d", attempt, maxObserveAttempts)

		solution, ok := viewpoint.FirstValidConfiguration(scene, viewpoints, opts, rnd)
		if !ok {
			r.logger.Warn("No viewpoint was feasible against the current scene")
			continue
		}
		r.logger.Infof("Selected viewpoint %d", solution.Index)

		if err := r.moveArmDirectToJoints(ctx, solution.Joints); err != nil {
			r.logger.Warnf("Failed to move to viewpoint %d: %v", solution.Index, err)
			continue
		}

		// The filter vetted visibility at plan time; confirm it held up
		// after the physical move.
		if !scene.TargetVisible() {
			r.logger.Warnf("Target not visible from viewpoint %d after moving, retrying", solution.Index)
			continue
		}

		r.state.LastSolution = &solution
		r.state.TargetsObserved++
		r.logger.Infof("Target observed from viewpoint %d (total observed: %d)",
			solution.Index, r.state.TargetsObserved)
		return nil
	}

	return fmt.Errorf("%w: no viewpoint reached after %d attempts", viewpoint.ErrNoViewpoints, maxObserveAttempts)
}
