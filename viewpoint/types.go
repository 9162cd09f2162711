package viewpoint

import (
	"go.viam.com/rdk/referenceframe"
)

// Solution pairs an arm joint configuration with the index of the viewpoint
// it reaches. Produced by the feasibility filter; not persisted.
type Solution struct {
	Joints []referenceframe.Input
	Index  int
}

// modelState tracks how far a Model has progressed toward a usable
// viewpoint set.
type modelState int

const (
	// stateUnloaded means no manipulator or sensor has been bound yet.
	stateUnloaded modelState = iota
	// statePreprocessed means the manipulator and sensor are bound and the
	// IK capability is available, but no viewpoints exist.
	statePreprocessed
	// statePopulated means a non-empty viewpoint set has been generated or loaded.
	statePopulated
)

func (s modelState) String() string {
	switch s {
	case stateUnloaded:
		return "unloaded"
	case statePreprocessed:
		return "preprocessed"
	case statePopulated:
		return "populated"
	default:
		return "unknown"
	}
}
