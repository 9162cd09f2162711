package viewpoint

import (
	"sort"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
)

// PruneByDensity reduces a feasible viewpoint set to the candidates whose
// neighborhoods in the manipulator's reachability cloud are dense. Isolated
// feasible poses tend to sit near a reachability boundary and break under
// small execution errors; well-surrounded ones are robust.
//
// index is a kd-tree over the reachability samples, expressed in the
// manipulator base frame. A nil index degrades to the identity: the input
// set is returned unchanged.
// Only translation-only pruning is supported; requesting full-pose pruning
// is a caller error and fails with ErrUnsupportedPruning.
//
// The kept candidates are returned densest-first.
func PruneByDensity(
	viewpoints []spatialmath.Pose,
	index *pointcloud.KDTree,
	basePose, targetPose spatialmath.Pose,
	cfg PruneConfig,
) ([]spatialmath.Pose, error) {
	if !cfg.TranslationOnly {
		return nil, ErrUnsupportedPruning
	}
	if index == nil {
		return viewpoints, nil
	}

	candidates := viewpoints
	if cfg.MaxDistMm > 0 {
		candidates = make([]spatialmath.Pose, 0, len(viewpoints))
		for _, vp := range viewpoints {
			// The inverted pose's Z translation is the standoff distance
			// along the camera axis.
			if spatialmath.PoseInverse(vp).Point().Z < cfg.MaxDistMm {
				candidates = append(candidates, vp)
			}
		}
	}

	// Candidate poses live in the target frame; the reachability cloud lives
	// in the manipulator base frame. Re-express before counting neighbors.
	targetInBase := spatialmath.Compose(spatialmath.PoseInverse(basePose), targetPose)

	type scored struct {
		pose      spatialmath.Pose
		neighbors int
	}
	var kept []scored
	for _, vp := range candidates {
		pt := spatialmath.Compose(targetInBase, vp).Point()
		neighbors := len(index.RadiusNearestNeighbors(pt, cfg.ThreshMm, false))
		if neighbors > cfg.MinNeighbors {
			kept = append(kept, scored{pose: vp, neighbors: neighbors})
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].neighbors > kept[j].neighbors
	})

	pruned := make([]spatialmath.Pose, len(kept))
	for i, s := range kept {
		pruned[i] = s.pose
	}
	return pruned, nil
}
