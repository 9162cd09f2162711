package spyglass

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/motionplan"
	"go.viam.com/rdk/referenceframe"
)

func testRobot(t *testing.T) *Robot {
	t.Helper()
	return &Robot{
		logger:    logging.NewTestLogger(t),
		state:     &ObservationState{},
		ModelsDir: t.TempDir(),
	}
}

func TestTrajectoryCacheRoundTrip(t *testing.T) {
	r := testRobot(t)

	traj := motionplan.Trajectory{
		{armName: []referenceframe.Input{0.1, -0.5, 1.2, 0, 0.3, 0}},
		{armName: []referenceframe.Input{0.2, -0.4, 1.1, 0, 0.2, 0}},
	}
	r.saveCachedTrajectory("home_trajectory.json", traj)

	loaded := r.loadCachedTrajectory("home_trajectory.json")
	if loaded == nil {
		t.Fatal("expected cached trajectory to load")
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(loaded))
	}
	if len(loaded[1][armName]) != 6 {
		t.Errorf("expected 6 joints in final step, got %d", len(loaded[1][armName]))
	}
}

func TestTrajectoryCacheMissingOrCorrupt(t *testing.T) {
	r := testRobot(t)

	if traj := r.loadCachedTrajectory("nope.json"); traj != nil {
		t.Error("expected nil for a missing cache file")
	}

	path := filepath.Join(r.ModelsDir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if traj := r.loadCachedTrajectory("bad.json"); traj != nil {
		t.Error("expected nil for a corrupt cache file")
	}

	// Without a models dir the cache is disabled entirely.
	r.ModelsDir = ""
	r.saveCachedTrajectory("home_trajectory.json", motionplan.Trajectory{})
	if traj := r.loadCachedTrajectory("home_trajectory.json"); traj != nil {
		t.Error("expected nil when ModelsDir is unset")
	}
}

func TestModelPath(t *testing.T) {
	r := testRobot(t)
	want := filepath.Join(r.ModelsDir, "visibility-arm-camera.json")
	if got := r.modelPath(); got != want {
		t.Errorf("modelPath() = %q, want %q", got, want)
	}

	r.ModelsDir = ""
	if got := r.modelPath(); got != "" {
		t.Errorf("expected empty model path without a models dir, got %q", got)
	}
}

func TestResetStatePreservesTotals(t *testing.T) {
	r := testRobot(t)
	r.state.ViewAttempts = 3
	r.state.TargetsObserved = 7

	r.resetState()

	if r.state.ViewAttempts != 0 {
		t.Errorf("ViewAttempts not cleared: %d", r.state.ViewAttempts)
	}
	if r.state.TargetsObserved != 7 {
		t.Errorf("TargetsObserved not preserved: %d", r.state.TargetsObserved)
	}
	if r.state.TargetPose != nil || r.state.ObstacleIndex != nil {
		t.Error("per-target state not cleared")
	}
}
