package spyglass

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/biotinker/spyglass/viewpoint"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/motionplan"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/rdk/robot/framesystem"
	"go.viam.com/rdk/services/motion"
	"go.viam.com/rdk/spatialmath"
)

const (
	// motionServiceName is the resource name of the builtin motion service.
	motionServiceName = "builtin"

	armName     = "arm"
	gripperName = "gripper"
	cameraName  = "camera"
	worldFrame  = "world"
)

// Robot holds all hardware references, services, and state for the
// viewpoint-observation pipeline.
type Robot struct {
	logger  logging.Logger
	machine robot.Robot

	arm     arm.Arm
	gripper gripper.Gripper
	cam     camera.Camera

	motion motion.Service
	fsSvc  framesystem.Service

	// State
	state *ObservationState

	// Visibility model for the current target; built or loaded by Survey.
	model *viewpoint.Model

	// ModelsDir, when set, is a directory for persisting cached visibility
	// models to disk. If empty, models are rebuilt every session.
	ModelsDir string

	// ReachabilityPath, when set, points at a PCD reachability cloud used
	// for density pruning. Optional; pruning degrades to a no-op without it.
	ReachabilityPath string

	// Cached trajectory for returning to the home pose — planned once via
	// DoPlan, reused via DoExecute.
	homeTrajectory motionplan.Trajectory
}

// ObservationState tracks the state of the current observation cycle.
type ObservationState struct {
	// Target pose in the world frame, from the survey step.
	TargetPose spatialmath.Pose

	// Point cloud of the detected target.
	TargetCloud pointcloud.PointCloud

	// kd-tree over non-target scene points, used for occlusion checks.
	ObstacleIndex *pointcloud.KDTree

	// Obstacle geometries from the survey, for collision-checked planning.
	Obstacles *referenceframe.WorldState

	// Last accepted viewpoint solution.
	LastSolution *viewpoint.Solution

	// Attempt counter for the current observe step.
	ViewAttempts int

	// Total targets observed this session.
	TargetsObserved int
}

// NewRobot creates a Robot by looking up all hardware resources from the
// machine. The arm, camera, and motion service are required; the gripper is
// optional (preshapes degrade to a no-op without one).
func NewRobot(ctx context.Context, machine robot.Robot, logger logging.Logger) (*Robot, error) {
	r := &Robot{
		logger:  logger,
		machine: machine,
		state:   &ObservationState{},
	}

	armComponent, err := arm.FromProvider(machine, armName)
	if err != nil {
		return nil, fmt.Errorf("arm (%s): %w", armName, err)
	}
	r.arm = armComponent

	camComponent, err := camera.FromProvider(machine, cameraName)
	if err != nil {
		return nil, fmt.Errorf("camera (%s): %w", cameraName, err)
	}
	r.cam = camComponent

	gripperComponent, err := gripper.FromProvider(machine, gripperName)
	if err != nil {
		logger.Warnf("Gripper (%s) not found; preshape handling disabled: %v", gripperName, err)
	} else {
		r.gripper = gripperComponent
	}

	motionSvc, err := motion.FromProvider(machine, motionServiceName)
	if err != nil {
		return nil, fmt.Errorf("motion service: %w", err)
	}
	r.motion = motionSvc

	robotClient, ok := machine.(*client.RobotClient)
	if !ok {
		return nil, fmt.Errorf("machine is %T, need *client.RobotClient for frame system access", machine)
	}
	r.fsSvc = module.NewFrameSystemClient(robotClient)

	return r, nil
}

// poseOf returns a component's pose in the world frame.
func (r *Robot) poseOf(ctx context.Context, componentName string) (spatialmath.Pose, error) {
	pif, err := r.fsSvc.GetPose(ctx, componentName, worldFrame, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("pose of %s: %w", componentName, err)
	}
	return pif.Pose(), nil
}

// moveFree moves a component to the destination pose with no path
// constraints. The motion planner chooses the optimal collision-free path.
func (r *Robot) moveFree(ctx context.Context, componentName string, dest spatialmath.Pose, worldState *referenceframe.WorldState) error {
	_, err := r.motion.Move(ctx, motion.MoveReq{
		ComponentName: componentName,
		Destination:   referenceframe.NewPoseInFrame(worldFrame, dest),
		WorldState:    worldState,
	})
	return err
}

// moveArmDirectToJoints moves the arm directly to joint positions without
// the motion service. This bypasses motion planning and obstacle avoidance;
// use it only for configurations the planner already vetted or for recorded
// safe positions.
func (r *Robot) moveArmDirectToJoints(ctx context.Context, joints []referenceframe.Input) error {
	if joints == nil {
		return fmt.Errorf("cannot move to nil joint positions")
	}
	return r.arm.MoveToJointPositions(ctx, joints, nil)
}

// doPlan calls the motion service's DoPlan DoCommand to generate a
// trajectory without executing it. The trajectory can be cached and
// replayed via doExecute, or inspected for its final joint configuration.
func (r *Robot) doPlan(ctx context.Context, req motion.MoveReq) (motionplan.Trajectory, error) {
	proto, err := req.ToProto(motionServiceName)
	if err != nil {
		return nil, fmt.Errorf("build plan proto: %w", err)
	}
	bytes, err := protojson.Marshal(proto)
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}
	resp, err := r.motion.DoCommand(ctx, map[string]interface{}{
		"plan": string(bytes),
	})
	if err != nil {
		return nil, fmt.Errorf("DoPlan: %w", err)
	}
	raw, ok := resp["plan"]
	if !ok {
		return nil, fmt.Errorf("DoPlan response missing 'plan' key")
	}
	var trajectory motionplan.Trajectory
	if err := mapstructure.Decode(raw, &trajectory); err != nil {
		return nil, fmt.Errorf("decode trajectory: %w", err)
	}
	return trajectory, nil
}

// doExecute calls the motion service's DoExecute DoCommand to replay a
// cached trajectory.
func (r *Robot) doExecute(ctx context.Context, trajectory motionplan.Trajectory) error {
	r.logger.Debugf("doExecute: %d trajectory steps", len(trajectory))

	resp, err := r.motion.DoCommand(ctx, map[string]interface{}{
		"execute": trajectory,
	})
	if err != nil {
		return fmt.Errorf("DoExecute: %w", err)
	}
	if ok, _ := resp["execute"].(bool); !ok {
		return fmt.Errorf("DoExecute returned non-true response: %v", resp["execute"])
	}
	return nil
}

// cachedFreeMove plans (or replays from cache) an unconstrained move to dest
// for the given component. traj must point to a trajectory field on Robot;
// it is populated on first call and reused thereafter.
func (r *Robot) cachedFreeMove(ctx context.Context, componentName string, dest spatialmath.Pose, traj *motionplan.Trajectory, cacheFile string) error {
	if *traj == nil {
		*traj = r.loadCachedTrajectory(cacheFile)
	}
	if *traj == nil {
		r.logger.Infof("Planning %s (first run; will be cached)", cacheFile)
		planned, err := r.doPlan(ctx, motion.MoveReq{
			ComponentName: componentName,
			Destination:   referenceframe.NewPoseInFrame(worldFrame, dest),
		})
		if err != nil {
			return err
		}
		*traj = planned
		r.saveCachedTrajectory(cacheFile, planned)
	}
	return r.doExecute(ctx, *traj)
}

// loadCachedTrajectory loads a trajectory from ModelsDir/filename.
// Returns nil if ModelsDir is unset, the file doesn't exist, or parsing fails.
func (r *Robot) loadCachedTrajectory(filename string) motionplan.Trajectory {
	if r.ModelsDir == "" {
		return nil
	}
	path := filepath.Join(r.ModelsDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var traj motionplan.Trajectory
	if err := json.Unmarshal(data, &traj); err != nil {
		r.logger.Warnf("Failed to parse cached trajectory %s: %v", path, err)
		return nil
	}
	r.logger.Infof("Loaded cached trajectory from %s (%d steps)", path, len(traj))
	return traj
}

// saveCachedTrajectory writes a trajectory to ModelsDir/filename as JSON.
// No-op if ModelsDir is unset; logs a warning on write failure.
func (r *Robot) saveCachedTrajectory(filename string, traj motionplan.Trajectory) {
	if r.ModelsDir == "" {
		return
	}
	if err := os.MkdirAll(r.ModelsDir, 0o755); err != nil {
		r.logger.Warnf("Failed to create models dir %s: %v", r.ModelsDir, err)
		return
	}
	path := filepath.Join(r.ModelsDir, filename)
	data, err := json.Marshal(traj)
	if err != nil {
		r.logger.Warnf("Failed to serialize trajectory for %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warnf("Failed to write trajectory to %s: %v", path, err)
		return
	}
	r.logger.Infof("Saved trajectory to %s (%d steps)", path, len(traj))
}

// modelPath is the on-disk location of the cached visibility model for the
// bound arm/camera pair.
func (r *Robot) modelPath() string {
	if r.ModelsDir == "" {
		return ""
	}
	return filepath.Join(r.ModelsDir, fmt.Sprintf("visibility-%s-%s.json", armName, cameraName))
}

// Model returns the current visibility model, or nil before Survey has run.
func (r *Robot) Model() *viewpoint.Model {
	return r.model
}

// LastSolution returns the most recent accepted viewpoint solution.
func (r *Robot) LastSolution() *viewpoint.Solution {
	if r.state == nil {
		return nil
	}
	return r.state.LastSolution
}

// resetState clears per-target state for the next cycle.
func (r *Robot) resetState() {
	r.state = &ObservationState{
		TargetsObserved: r.state.TargetsObserved,
	}
}
