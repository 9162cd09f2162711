package viewpoint

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Generator = GeneratorConfig{ShellRadiiMm: []float64{200}, SamplesPerShell: 6}
	return cfg
}

func testIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480,
		Fx: 600, Fy: 600, Ppx: 320, Ppy: 240,
	}
}

func TestGeneratePopulatesModel(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()
	scene.intr = testIntrinsics()

	m := NewModel(scene, logger, testConfig())
	if m.Has() {
		t.Fatal("fresh model should not report a viewpoint set")
	}

	preshapes := [][]float64{{0.04, 0.04}, {0.02, 0.02}}
	if err := m.Generate(preshapes); err != nil {
		t.Fatal(err)
	}

	if !m.Has() {
		t.Fatal("generate should populate the model")
	}
	if len(m.Viewpoints()) != 6 {
		t.Errorf("expected 6 viewpoints, got %d", len(m.Viewpoints()))
	}
	if m.Intrinsics() == nil || m.Intrinsics().Width != 640 {
		t.Error("intrinsics not captured at generation time")
	}

	// The first preshape row drives the gripper during evaluation.
	if len(scene.gripperJoints) != 0 {
		t.Errorf("gripper joints not restored after generate: %v", scene.gripperJoints)
	}
	if scene.isolations != 1 {
		t.Errorf("expected one body-isolation scope, got %d", scene.isolations)
	}
	if scene.isolated {
		t.Error("body enable flags not restored after generate")
	}
	if scene.statePushes != scene.stateRestores {
		t.Errorf("unbalanced state guards: %d pushes, %d restores", scene.statePushes, scene.stateRestores)
	}
}

func TestSaveRequiresPreprocess(t *testing.T) {
	m := NewModel(newFakeScene(), logging.NewTestLogger(t), testConfig())
	path := filepath.Join(t.TempDir(), "visibility.json")
	if err := m.Save(path); !errors.Is(err, ErrNotPreprocessed) {
		t.Fatalf("expected ErrNotPreprocessed, got %v", err)
	}
}

func TestGenerateRequiresPreshape(t *testing.T) {
	m := NewModel(newFakeScene(), logging.NewTestLogger(t), testConfig())
	if err := m.Generate(nil); !errors.Is(err, ErrNoPreshape) {
		t.Fatalf("expected ErrNoPreshape, got %v", err)
	}
}

func TestGenerateWithNoFeasibleCandidates(t *testing.T) {
	scene := newFakeScene()
	scene.solve = func(spatialmath.Pose, bool) ([]referenceframe.Input, bool) { return nil, false }

	m := NewModel(scene, logging.NewTestLogger(t), testConfig())
	if err := m.Generate([][]float64{{0}}); err != nil {
		t.Fatalf("an empty feasible set is not an error: %v", err)
	}
	if m.Has() {
		t.Error("model with no feasible viewpoints must not report populated")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()
	scene.intr = testIntrinsics()

	m := NewModel(scene, logger, testConfig())
	preshapes := [][]float64{{0.04, 0.04}}
	if err := m.Generate(preshapes); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "visibility.json")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewModel(newFakeScene(), logger, testConfig())
	ok, err := loaded.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("load of a freshly saved model failed")
	}
	if !loaded.Has() {
		t.Error("Has() must be true immediately after a successful load")
	}

	if len(loaded.Viewpoints()) != len(m.Viewpoints()) {
		t.Fatalf("viewpoint count changed: %d vs %d", len(loaded.Viewpoints()), len(m.Viewpoints()))
	}
	for i := range m.Viewpoints() {
		if !PosesAlmostEqual(m.Viewpoints()[i], loaded.Viewpoints()[i]) {
			t.Errorf("viewpoint %d drifted through persistence", i)
		}
	}

	if len(loaded.Preshapes()) != 1 || len(loaded.Preshapes()[0]) != 2 {
		t.Fatalf("preshapes not preserved: %v", loaded.Preshapes())
	}
	for i, v := range preshapes[0] {
		if loaded.Preshapes()[0][i] != v {
			t.Errorf("preshape value %d changed: %v", i, loaded.Preshapes()[0][i])
		}
	}
	if loaded.Intrinsics() == nil || loaded.Intrinsics().Fx != 600 {
		t.Error("intrinsics not preserved")
	}
	// No pruning ran, so no pruning record should appear on the far side.
	if loaded.densityArtifact != nil {
		t.Errorf("unpruned model grew a pruning record through persistence: %s", loaded.densityArtifact)
	}
}

// writeReachabilityPCD clusters count samples around each center, spread
// tightly enough that they all land within the pruning radius.
func writeReachabilityPCD(t *testing.T, path string, count int, centers ...r3.Vector) {
	t.Helper()
	cloud := pointcloud.NewBasicEmpty()
	for _, c := range centers {
		for i := 0; i < count; i++ {
			offset := r3.Vector{X: float64(i), Y: float64(i % 3), Z: -float64(i)}
			if err := cloud.Set(c.Add(offset), nil); err != nil {
				t.Fatal(err)
			}
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := pointcloud.ToPCD(cloud, file, pointcloud.PCDBinary); err != nil {
		t.Fatal(err)
	}
}

func TestSaveLoadPreservesPruningRecord(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()
	scene.intr = testIntrinsics()

	cfg := testConfig()
	cfg.Prune.MinNeighbors = 2
	m := NewModel(scene, logger, cfg)
	if err := m.Generate([][]float64{{0.04}}); err != nil {
		t.Fatal(err)
	}

	// The fake scene's base and target frames coincide, so reachability
	// samples placed at a viewpoint's own position count as its neighbors.
	dir := t.TempDir()
	reachPath := filepath.Join(dir, "reachability.pcd")
	writeReachabilityPCD(t, reachPath, 4, m.Viewpoints()[0].Point())
	m.SetReachabilityPath(reachPath)

	pruned, err := m.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if len(pruned) != 1 {
		t.Fatalf("expected exactly the covered viewpoint to survive, got %d", len(pruned))
	}
	if m.densityArtifact == nil {
		t.Fatal("pruning against a reachability index must record its outcome")
	}
	m.SetViewpoints(pruned)

	path := filepath.Join(dir, "visibility.json")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewModel(newFakeScene(), logger, cfg)
	ok, err := loaded.Load(path)
	if err != nil || !ok {
		t.Fatalf("load failed: ok=%v err=%v", ok, err)
	}
	if loaded.densityArtifact == nil {
		t.Fatal("pruning record lost through persistence")
	}
	var record struct {
		ThreshMm     float64 `json:"thresh_mm"`
		MinNeighbors int     `json:"min_neighbors"`
		Kept         int     `json:"kept"`
	}
	if err := json.Unmarshal(loaded.densityArtifact, &record); err != nil {
		t.Fatal(err)
	}
	if record.ThreshMm != cfg.Prune.ThreshMm || record.MinNeighbors != 2 || record.Kept != 1 {
		t.Errorf("pruning record drifted: %+v", record)
	}
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := NewModel(newFakeScene(), logger, testConfig())

	ok, err := m.Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || ok {
		t.Errorf("missing file: want (false, nil), got (%v, %v)", ok, err)
	}

	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = m.Load(path)
	if err != nil || ok {
		t.Errorf("corrupt file: want (false, nil), got (%v, %v)", ok, err)
	}
	if m.Has() {
		t.Error("failed load must leave the model unpopulated")
	}
}

func TestLoadManipulatorMismatch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()
	scene.intr = testIntrinsics()

	m := NewModel(scene, logger, testConfig())
	if err := m.Generate([][]float64{{0.04}}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "visibility.json")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	other := newFakeScene()
	other.manip = "other-arm"
	loaded := NewModel(other, logger, testConfig())
	ok, err := loaded.Load(path)
	if ok {
		t.Fatal("load against the wrong manipulator must not succeed")
	}
	if !errors.Is(err, ErrManipulatorMismatch) {
		t.Fatalf("expected ErrManipulatorMismatch, got %v", err)
	}
}

func TestModelPruneIdentityWithoutReachability(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()
	m := NewModel(scene, logger, testConfig())
	if err := m.Generate([][]float64{{0.04}}); err != nil {
		t.Fatal(err)
	}

	pruned, err := m.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if len(pruned) != len(m.Viewpoints()) {
		t.Fatalf("pruning without reachability data must be identity: %d vs %d", len(pruned), len(m.Viewpoints()))
	}
	for i := range pruned {
		if !PosesAlmostEqual(pruned[i], m.Viewpoints()[i]) {
			t.Errorf("identity prune reordered candidate %d", i)
		}
	}

	// A dangling reachability path degrades the same way.
	m.SetReachabilityPath(filepath.Join(t.TempDir(), "missing.pcd"))
	pruned, err = m.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if len(pruned) != len(m.Viewpoints()) {
		t.Errorf("missing reachability file must degrade to identity, got %d of %d", len(pruned), len(m.Viewpoints()))
	}
}

func TestExtentsFileOverridesShells(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()

	dir := t.TempDir()
	path := filepath.Join(dir, "extents.txt")
	content := "# camera extents, mm\n200 0 0\n0 200 0\n\n0 0 200\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Generator.ExtentsPath = path
	m := NewModel(scene, logger, cfg)
	if err := m.Generate([][]float64{{0.04}}); err != nil {
		t.Fatal(err)
	}
	if len(m.Viewpoints()) != 3 {
		t.Fatalf("expected the 3 extents rows, got %d viewpoints", len(m.Viewpoints()))
	}
}

func TestLoadExtentsRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	if err := os.WriteFile(path, []byte("1 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadExtents(path); err == nil {
		t.Error("expected malformed extents row to be rejected")
	}
}
