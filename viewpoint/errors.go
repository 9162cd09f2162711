package viewpoint

import "errors"

var (
	// ErrUnsupportedPruning is returned when full-pose (6-DOF) density pruning
	// is requested. Only translation-only pruning is implemented.
	ErrUnsupportedPruning = errors.New("full-pose density pruning is not supported")

	// ErrManipulatorMismatch is returned when a loaded model names a different
	// manipulator than the one the scene is bound to.
	ErrManipulatorMismatch = errors.New("manipulator name does not match loaded model")

	// ErrNoPreshape is returned when Generate is called without any preshape rows.
	ErrNoPreshape = errors.New("at least one gripper preshape is required")

	// ErrNotRigid is returned when a 4x4 matrix is not a rigid transform.
	ErrNotRigid = errors.New("matrix is not a rigid transform")

	// ErrNotPreprocessed is returned when an operation requires a bound
	// manipulator and sensor before running.
	ErrNotPreprocessed = errors.New("model has not been preprocessed")

	// ErrNoViewpoints is returned when generation produced no feasible viewpoints.
	ErrNoViewpoints = errors.New("no feasible viewpoints found")
)
