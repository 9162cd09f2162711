package spyglass

import (
	"context"

	"github.com/golang/geo/r3"

	"github.com/biotinker/spyglass/viewpoint"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/services/motion"
	"go.viam.com/rdk/spatialmath"
)

// occlusionStepMm is the spacing of samples along the camera-to-target ray
// when checking for occluding scene points.
const occlusionStepMm = 25.0

// occlusionRadiusMm is how close a scene point must be to the view ray to
// count as blocking it.
const occlusionRadiusMm = 20.0

// liveScene implements viewpoint.Scene against the connected machine. IK and
// collision checking go through the motion service's DoPlan, so any
// kinematics the planner supports work unchanged here.
type liveScene struct {
	ctx context.Context
	r   *Robot

	// World state holding the obstacle geometries from the survey step.
	// Set to nil while the target is isolated.
	worldState *referenceframe.WorldState

	// Sensor calibration, queried from the camera once and cached.
	intrinsics *transform.PinholeCameraIntrinsics
}

func newLiveScene(ctx context.Context, r *Robot, worldState *referenceframe.WorldState) *liveScene {
	return &liveScene{ctx: ctx, r: r, worldState: worldState}
}

func (s *liveScene) ManipulatorName() string { return armName }
func (s *liveScene) SensorName() string      { return cameraName }

func (s *liveScene) SensorPose() spatialmath.Pose {
	pose, err := s.r.poseOf(s.ctx, cameraName)
	if err != nil {
		s.r.logger.Warnf("Failed to get camera pose, using identity: %v", err)
		return spatialmath.NewZeroPose()
	}
	return pose
}

func (s *liveScene) EndEffectorPose() spatialmath.Pose {
	pose, err := s.r.poseOf(s.ctx, armName)
	if err != nil {
		s.r.logger.Warnf("Failed to get arm pose, using identity: %v", err)
		return spatialmath.NewZeroPose()
	}
	return pose
}

func (s *liveScene) TargetPose() spatialmath.Pose {
	if s.r.state == nil || s.r.state.TargetPose == nil {
		return spatialmath.NewZeroPose()
	}
	return s.r.state.TargetPose
}

// BasePose returns the arm's mounting frame in the world. The machine's frame
// system places the arm at the world origin, so this is identity; machines
// with a mobile or offset base should express that in their frame config.
func (s *liveScene) BasePose() spatialmath.Pose {
	return spatialmath.NewZeroPose()
}

func (s *liveScene) Intrinsics() *transform.PinholeCameraIntrinsics {
	if s.intrinsics != nil {
		return s.intrinsics
	}
	props, err := s.r.cam.Properties(s.ctx)
	if err != nil {
		s.r.logger.Warnf("Failed to get camera properties: %v", err)
		return nil
	}
	s.intrinsics = props.IntrinsicParams
	return s.intrinsics
}

// SolveIK asks the motion planner for a path to the goal and returns the
// final joint configuration of that path. A successful plan doubles as both
// the reachability and, when worldState is included, the collision check.
func (s *liveScene) SolveIK(goal spatialmath.Pose, checkCollision bool) ([]referenceframe.Input, bool) {
	req := motion.MoveReq{
		ComponentName: armName,
		Destination:   referenceframe.NewPoseInFrame(worldFrame, goal),
	}
	if checkCollision {
		req.WorldState = s.worldState
	}
	trajectory, err := s.r.doPlan(s.ctx, req)
	if err != nil || len(trajectory) == 0 {
		return nil, false
	}
	joints, ok := trajectory[len(trajectory)-1][armName]
	if !ok || len(joints) == 0 {
		s.r.logger.Warnf("Plan succeeded but final step has no %s joints", armName)
		return nil, false
	}
	return joints, true
}

func (s *liveScene) SetArmJoints(joints []referenceframe.Input) {
	if err := s.r.moveArmDirectToJoints(s.ctx, joints); err != nil {
		s.r.logger.Warnf("Failed to move arm to candidate joints: %v", err)
	}
}

// SetGripperJoints maps a preshape row onto the gripper's open/closed
// actuation. Viam grippers expose Open and Grab rather than joint control,
// so a positive leading value opens and anything else closes.
func (s *liveScene) SetGripperJoints(vals []float64) {
	if s.r.gripper == nil || len(vals) == 0 {
		return
	}
	var err error
	if vals[0] > 0 {
		err = s.r.gripper.Open(s.ctx, nil)
	} else {
		_, err = s.r.gripper.Grab(s.ctx, nil)
	}
	if err != nil {
		s.r.logger.Warnf("Failed to apply gripper preshape: %v", err)
	}
}

// TargetVisible projects the target center through the camera's pinhole
// model and walks the view ray against the survey's obstacle cloud.
func (s *liveScene) TargetVisible() bool {
	intrinsics := s.Intrinsics()
	if intrinsics == nil {
		// Uncalibrated camera; fall back to reachability-only filtering.
		return true
	}
	camPose := s.SensorPose()
	target := s.TargetPose()
	if !targetInView(intrinsics, camPose, target) {
		return false
	}
	var index *pointcloud.KDTree
	if s.r.state != nil {
		index = s.r.state.ObstacleIndex
	}
	return !rayOccluded(index, camPose.Point(), target.Point())
}

// targetInView reports whether the target center lands inside the camera's
// image bounds. A target behind the image plane is never in view.
func targetInView(intrinsics *transform.PinholeCameraIntrinsics, camPose, target spatialmath.Pose) bool {
	inCamera := spatialmath.Compose(spatialmath.PoseInverse(camPose), target)
	pt := inCamera.Point()
	if pt.Z <= 0 {
		return false
	}
	u, v := intrinsics.PointToPixel(pt.X, pt.Y, pt.Z)
	return u >= 0 && v >= 0 && u < float64(intrinsics.Width) && v < float64(intrinsics.Height)
}

// rayOccluded checks the obstacle index for points near the segment from the
// camera to the target, stopping short of the target itself so the target's
// own surface does not count as an occluder. A nil index never occludes.
func rayOccluded(index *pointcloud.KDTree, from, to r3.Vector) bool {
	if index == nil {
		return false
	}
	dir := to.Sub(from)
	dist := dir.Norm()
	if dist < occlusionStepMm {
		return false
	}
	dir = dir.Mul(1 / dist)
	for d := occlusionStepMm; d < dist-2*occlusionRadiusMm; d += occlusionStepMm {
		sample := from.Add(dir.Mul(d))
		if len(index.RadiusNearestNeighbors(sample, occlusionRadiusMm, false)) > 0 {
			return true
		}
	}
	return false
}

// PushState snapshots the arm joints and returns a move back to them. The
// gripper is not snapshotted; preshapes are applied deliberately and kept.
func (s *liveScene) PushState() func() {
	joints, err := s.r.arm.JointPositions(s.ctx, nil)
	if err != nil {
		s.r.logger.Warnf("Failed to read arm joints for state snapshot: %v", err)
		return func() {}
	}
	return func() {
		if err := s.r.moveArmDirectToJoints(s.ctx, joints); err != nil {
			s.r.logger.Warnf("Failed to restore arm joints: %v", err)
		}
	}
}

// IsolateTarget drops the obstacle world state so the planner only checks
// the robot's self-collisions, matching a scene where every body except the
// robot and target is disabled. The restore closure reinstates it.
func (s *liveScene) IsolateTarget() func() {
	saved := s.worldState
	s.worldState = nil
	return func() {
		s.worldState = saved
	}
}

var _ viewpoint.Scene = (*liveScene)(nil)
