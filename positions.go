package spyglass

import (
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
)

// Joint positions recorded from the live robot on 2026-08-18.
var (
	// SurveyViewingJoints is the joint position for the arm to hold the
	// wrist camera over the workspace for the survey scan.
	SurveyViewingJoints = []referenceframe.Input{
		0.972214, -0.845112, -0.403667, 1.512209, 0.218445, 1.734981,
	}

	// HomeJoints is the parked joint position between observation cycles.
	// Recorded 2026-08-18.
	HomeJoints = []referenceframe.Input{
		0.000000, -0.785398, -0.523599, 0.000000, 1.308997, 0.000000,
	}
)

// World-frame poses for key locations.
var (
	// HomePose is the world-frame camera rest pose between cycles, used for
	// the cached return trajectory. Recorded 2026-08-18.
	HomePose spatialmath.Pose = spatialmath.NewPose(
		r3.Vector{X: 312.441185, Y: -84.170226, Z: 611.507933},
		&spatialmath.OrientationVectorDegrees{OX: 0.018201, OY: 0.104532, OZ: -0.994355, Theta: -12.479160},
	)
)

// DefaultPreshapes holds the gripper preshape rows evaluated during model
// generation. Only the first row is applied; a positive leading value means
// the gripper is held open while viewpoints are scanned.
var DefaultPreshapes = [][]float64{
	{1.0},
}
