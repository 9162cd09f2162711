package viewpoint

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"
)

// Scene is the narrow capability interface the filter and model need from
// the world: current rigid poses, an IK solver, a visibility oracle, and
// scoped save/restore of the mutable robot state. Implementations back these
// with a live machine or with fakes for testing.
type Scene interface {
	// ManipulatorName identifies the kinematic chain under evaluation.
	ManipulatorName() string
	// SensorName identifies the camera the model is built for.
	SensorName() string

	// SensorPose is the camera pose in the world frame.
	SensorPose() spatialmath.Pose
	// EndEffectorPose is the manipulator's terminal frame in the world frame.
	EndEffectorPose() spatialmath.Pose
	// TargetPose is the target body's pose in the world frame.
	TargetPose() spatialmath.Pose
	// BasePose is the manipulator base frame in the world frame.
	BasePose() spatialmath.Pose

	// Intrinsics returns the sensor's pinhole calibration, or nil if the
	// sensor is uncalibrated.
	Intrinsics() *transform.PinholeCameraIntrinsics

	// SolveIK returns an arm joint configuration reaching the goal, or
	// false when no solution exists. checkCollision additionally requires
	// the solution to be collision-free.
	SolveIK(goal spatialmath.Pose, checkCollision bool) ([]referenceframe.Input, bool)

	// SetArmJoints drives the arm joints only; gripper joints are untouched.
	SetArmJoints(joints []referenceframe.Input)
	// SetGripperJoints drives the gripper joints only.
	SetGripperJoints(vals []float64)

	// TargetVisible reports whether the target is currently visible to the
	// sensor (field of view plus occlusion).
	TargetVisible() bool

	// PushState snapshots the robot joint configuration and returns a
	// function restoring it. Callers must invoke the restore on every exit
	// path, typically via defer. Implementations whose gripper hardware has
	// no joint readback may restore the arm only; a preshape applied via
	// SetGripperJoints then outlives the scope, and the caller is
	// responsible for re-opening the gripper afterwards.
	PushState() (restore func())

	// IsolateTarget disables collision for every body except the robot and
	// the target, returning a function that re-enables them.
	IsolateTarget() (restore func())
}

// relativeGraspOffset computes the fixed transform from the camera frame to
// the end-effector frame as a homogeneous matrix. It depends only on the
// current sensor mounting, so the filter computes it once per scan.
func relativeGraspOffset(scene Scene) *mat.Dense {
	sensor := MatrixFromPose(scene.SensorPose())
	effector := MatrixFromPose(scene.EndEffectorPose())
	return ComposeMatrices(RigidInverse(sensor), effector)
}

// graspFromViewpoint converts a candidate camera pose in the target frame
// into the end-effector transform that places the sensor there. The chain
// is accumulated as matrix products and converted back to a pose at the
// end, which re-normalizes any rotation drift in one place.
func graspFromViewpoint(scene Scene, relative *mat.Dense, viewpoint spatialmath.Pose) (spatialmath.Pose, error) {
	camera := ComposeMatrices(MatrixFromPose(scene.TargetPose()), MatrixFromPose(viewpoint))
	return PoseFromMatrix(ComposeMatrices(camera, relative))
}

// ValidConfigurations scans every candidate viewpoint in order and returns
// all accepted (joints, index) pairs. A candidate is accepted when IK finds
// a configuration and, if opts.CheckVisibility is set, the target remains
// visible with that configuration applied. The robot state is restored
// before returning.
func ValidConfigurations(scene Scene, viewpoints []spatialmath.Pose, opts FilterConfig) []Solution {
	return scanViewpoints(scene, viewpoints, opts, nil, true)
}

// FirstValidConfiguration returns the first accepted candidate, or false if
// every candidate is rejected. When opts.Randomize is set the scan order is
// a uniformly random permutation, which avoids always answering with the
// geometrically earliest cluster of samples; rnd may be nil to use the
// global source.
func FirstValidConfiguration(scene Scene, viewpoints []spatialmath.Pose, opts FilterConfig, rnd *rand.Rand) (Solution, bool) {
	found := scanViewpoints(scene, viewpoints, opts, rnd, false)
	if len(found) == 0 {
		return Solution{}, false
	}
	return found[0], true
}

func scanViewpoints(scene Scene, viewpoints []spatialmath.Pose, opts FilterConfig, rnd *rand.Rand, returnAll bool) []Solution {
	restore := scene.PushState()
	defer restore()

	order := scanOrder(len(viewpoints), opts.Randomize, rnd)
	relative := relativeGraspOffset(scene)

	var found []Solution
	for _, i := range order {
		grasp, err := graspFromViewpoint(scene, relative, viewpoints[i])
		if err != nil {
			continue
		}
		joints, ok := scene.SolveIK(grasp, opts.CheckCollision)
		if !ok {
			// No reachable configuration; visibility is never consulted.
			continue
		}
		scene.SetArmJoints(joints)
		if opts.CheckVisibility && !scene.TargetVisible() {
			continue
		}
		found = append(found, Solution{Joints: joints, Index: i})
		if !returnAll {
			return found
		}
	}
	return found
}

func scanOrder(n int, randomize bool, rnd *rand.Rand) []int {
	if randomize {
		if rnd != nil {
			return rnd.Perm(n)
		}
		return rand.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
