package viewpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"
)

// modelVersion is bumped whenever the persisted artifact schema changes.
const modelVersion = 1

// Model owns a visibility viewpoint set for one manipulator/sensor/target
// triple: the candidate camera poses, the gripper preshapes they were
// evaluated with, and the sensor calibration captured at generation time.
// It moves through three states: unloaded, preprocessed (manipulator and
// sensor bound), and populated (non-empty viewpoint set).
type Model struct {
	logger logging.Logger
	scene  Scene
	cfg    Config

	state      modelState
	manipName  string
	sensorName string

	viewpoints []spatialmath.Pose
	preshapes  [][]float64
	intrinsics *transform.PinholeCameraIntrinsics
	imageDims  [2]int

	densityArtifact json.RawMessage

	// Reachability data is optional and lazily loaded. Its absence turns
	// pruning into a no-op; the model never generates it itself.
	reachabilityPath string
	reachIndex       *pointcloud.KDTree
}

// NewModel creates an unloaded model bound to a scene.
func NewModel(scene Scene, logger logging.Logger, cfg Config) *Model {
	return &Model{
		logger: logger,
		scene:  scene,
		cfg:    cfg,
	}
}

// SetReachabilityPath points the model at a PCD file holding the
// manipulator's reachability sample cloud (in the base frame). The file is
// read the first time Prune runs.
func (m *Model) SetReachabilityPath(path string) {
	m.reachabilityPath = path
	m.reachIndex = nil
}

// Preprocess binds the manipulator and sensor identities from the scene.
// Re-binding to a different manipulator than a previously loaded model names
// is a caller error.
func (m *Model) Preprocess() error {
	manipName := m.scene.ManipulatorName()
	if m.manipName != "" && m.manipName != manipName {
		return fmt.Errorf("%w: have %q, scene has %q", ErrManipulatorMismatch, m.manipName, manipName)
	}
	m.manipName = manipName
	m.sensorName = m.scene.SensorName()
	if m.state == stateUnloaded {
		m.state = statePreprocessed
	}
	return nil
}

// Has reports whether the model holds a non-empty viewpoint set.
func (m *Model) Has() bool {
	return m.state == statePopulated && len(m.viewpoints) > 0
}

// Viewpoints returns the current candidate set. Callers must not mutate it;
// replacement goes through SetViewpoints.
func (m *Model) Viewpoints() []spatialmath.Pose {
	return m.viewpoints
}

// SetViewpoints replaces the candidate set wholesale, e.g. with a pruned
// subset.
func (m *Model) SetViewpoints(viewpoints []spatialmath.Pose) {
	m.viewpoints = viewpoints
	if len(viewpoints) > 0 {
		m.state = statePopulated
	} else if m.state == statePopulated {
		m.state = statePreprocessed
	}
}

// Preshapes returns the gripper preshape rows the model was generated with.
func (m *Model) Preshapes() [][]float64 {
	return m.preshapes
}

// Intrinsics returns the sensor calibration captured at generation time, or
// nil before generation.
func (m *Model) Intrinsics() *transform.PinholeCameraIntrinsics {
	return m.intrinsics
}

// ManipulatorName returns the bound manipulator name, empty before preprocess.
func (m *Model) ManipulatorName() string {
	return m.manipName
}

// Generate builds the viewpoint set: sample candidate camera poses around
// the target, keep the ones the feasibility filter accepts, and capture the
// sensor calibration. The first preshape row is applied to the gripper for
// the whole evaluation. Collision checking is scoped to the robot and the
// target only; every other body is disabled for the duration and re-enabled
// on all exit paths.
func (m *Model) Generate(preshapes [][]float64) error {
	if len(preshapes) == 0 {
		return ErrNoPreshape
	}
	if err := m.Preprocess(); err != nil {
		return err
	}

	m.intrinsics = m.scene.Intrinsics()
	if m.intrinsics != nil {
		m.imageDims = [2]int{m.intrinsics.Width, m.intrinsics.Height}
	}

	restoreBodies := m.scene.IsolateTarget()
	defer restoreBodies()
	restoreState := m.scene.PushState()
	defer restoreState()

	m.scene.SetGripperJoints(preshapes[0])

	candidates := m.candidateViewpoints()
	m.logger.Infof("Evaluating %d candidate viewpoints", len(candidates))

	opts := m.cfg.Filter
	opts.Randomize = false
	solutions := ValidConfigurations(m.scene, candidates, opts)

	viewpoints := make([]spatialmath.Pose, 0, len(solutions))
	for _, sol := range solutions {
		viewpoints = append(viewpoints, candidates[sol.Index])
	}

	m.preshapes = preshapes
	m.densityArtifact = nil
	m.SetViewpoints(viewpoints)

	if len(viewpoints) == 0 {
		m.logger.Warn("No candidate viewpoint was reachable and visible")
	} else {
		m.logger.Infof("Kept %d of %d candidate viewpoints", len(viewpoints), len(candidates))
	}
	return nil
}

// candidateViewpoints produces the initial sample: from an extents file when
// one is configured and readable, otherwise from the shell spec.
func (m *Model) candidateViewpoints() []spatialmath.Pose {
	if m.cfg.Generator.ExtentsPath != "" {
		extents, err := loadExtents(m.cfg.Generator.ExtentsPath)
		if err == nil && len(extents) > 0 {
			m.logger.Infof("Using %d extents from %s", len(extents), m.cfg.Generator.ExtentsPath)
			return ViewpointsFromExtents(extents)
		}
		if err != nil {
			m.logger.Warnf("Extents file %s unusable, falling back to shell sampling: %v", m.cfg.Generator.ExtentsPath, err)
		}
	}
	return ViewpointsOnShells(m.cfg.Generator)
}

// Prune runs density pruning against the reachability index and returns the
// kept viewpoints densest-first. The model's own set is not replaced; pass
// the result to SetViewpoints to adopt it. Without reachability data the
// input set comes back unchanged.
func (m *Model) Prune() ([]spatialmath.Pose, error) {
	if m.reachIndex == nil && m.reachabilityPath != "" {
		index, err := loadReachabilityIndex(m.reachabilityPath)
		if err != nil {
			m.logger.Warnf("Reachability cloud %s unusable, pruning degrades to identity: %v", m.reachabilityPath, err)
		} else {
			m.reachIndex = index
		}
	}

	pruned, err := PruneByDensity(m.viewpoints, m.reachIndex, m.scene.BasePose(), m.scene.TargetPose(), m.cfg.Prune)
	if err != nil {
		return nil, err
	}
	if m.reachIndex != nil {
		artifact, _ := json.Marshal(map[string]interface{}{
			"thresh_mm":     m.cfg.Prune.ThreshMm,
			"min_neighbors": m.cfg.Prune.MinNeighbors,
			"kept":          len(pruned),
		})
		m.densityArtifact = artifact
	}
	return pruned, nil
}

// poseRecord is the persisted form of one viewpoint: translation plus a
// unit quaternion in w,x,y,z order.
type poseRecord struct {
	T [3]float64 `json:"t"`
	Q [4]float64 `json:"q"`
}

type modelArtifact struct {
	Version         int                                `json:"version"`
	Manipulator     string                             `json:"manipulator"`
	Sensor          string                             `json:"sensor"`
	Viewpoints      []poseRecord                       `json:"visibility_transforms"`
	DensityArtifact json.RawMessage                    `json:"density_artifact,omitempty"`
	Intrinsics      *transform.PinholeCameraIntrinsics `json:"intrinsics,omitempty"`
	ImageDims       [2]int                             `json:"image_dims"`
	Preshapes       [][]float64                        `json:"preshapes"`
}

// Save writes the model artifact to path as JSON.
func (m *Model) Save(path string) error {
	if m.state == stateUnloaded {
		return ErrNotPreprocessed
	}
	records := make([]poseRecord, len(m.viewpoints))
	for i, vp := range m.viewpoints {
		pt := vp.Point()
		q := vp.Orientation().Quaternion()
		records[i] = poseRecord{
			T: [3]float64{pt.X, pt.Y, pt.Z},
			Q: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		}
	}
	artifact := modelArtifact{
		Version:         modelVersion,
		Manipulator:     m.manipName,
		Sensor:          m.sensorName,
		Viewpoints:      records,
		DensityArtifact: m.densityArtifact,
		Intrinsics:      m.intrinsics,
		ImageDims:       m.imageDims,
		Preshapes:       m.preshapes,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize visibility model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write visibility model: %w", err)
	}
	m.logger.Infof("Saved visibility model to %s (%d viewpoints)", path, len(records))
	return nil
}

// Load reads a model artifact from path. A missing, corrupt, or empty
// artifact yields false and no error; the caller is expected to fall back
// to Generate. A loaded artifact naming a different manipulator than the
// scene's is a caller contract violation and returns ErrManipulatorMismatch.
func (m *Model) Load(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		m.logger.Debugf("No visibility model at %s: %v", path, err)
		return false, nil
	}
	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		m.logger.Warnf("Failed to parse visibility model %s: %v", path, err)
		return false, nil
	}
	if artifact.Version != modelVersion {
		m.logger.Warnf("Visibility model %s has version %d, want %d", path, artifact.Version, modelVersion)
		return false, nil
	}
	if artifact.Manipulator != "" && artifact.Manipulator != m.scene.ManipulatorName() {
		return false, fmt.Errorf("%w: artifact has %q, scene has %q",
			ErrManipulatorMismatch, artifact.Manipulator, m.scene.ManipulatorName())
	}

	viewpoints := make([]spatialmath.Pose, len(artifact.Viewpoints))
	for i, rec := range artifact.Viewpoints {
		q := normalizeQuat(quat.Number{Real: rec.Q[0], Imag: rec.Q[1], Jmag: rec.Q[2], Kmag: rec.Q[3]})
		viewpoints[i] = spatialmath.NewPose(
			r3.Vector{X: rec.T[0], Y: rec.T[1], Z: rec.T[2]},
			&spatialmath.Quaternion{Real: q.Real, Imag: q.Imag, Jmag: q.Jmag, Kmag: q.Kmag},
		)
	}

	m.manipName = artifact.Manipulator
	m.sensorName = artifact.Sensor
	m.preshapes = artifact.Preshapes
	m.intrinsics = artifact.Intrinsics
	m.imageDims = artifact.ImageDims
	m.densityArtifact = artifact.DensityArtifact
	if err := m.Preprocess(); err != nil {
		return false, err
	}
	m.SetViewpoints(viewpoints)

	if !m.Has() {
		return false, nil
	}
	m.logger.Infof("Loaded visibility model from %s (%d viewpoints)", path, len(viewpoints))
	return true, nil
}

// loadExtents parses a whitespace-separated text file with one 3-vector per
// line (camera position in the target frame, mm). Blank lines and lines
// starting with # are skipped.
func loadExtents(path string) ([]r3.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var extents []r3.Vector
	for lineno, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("extents line %d: want 3 fields, got %d", lineno+1, len(fields))
		}
		var v [3]float64
		for i, f := range fields {
			v[i], err = strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("extents line %d: %w", lineno+1, err)
			}
		}
		extents = append(extents, r3.Vector{X: v[0], Y: v[1], Z: v[2]})
	}
	return extents, nil
}

// loadReachabilityIndex reads a reachability sample cloud from a PCD file
// and indexes it for radius queries.
func loadReachabilityIndex(path string) (*pointcloud.KDTree, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cloud, err := pointcloud.ReadPCD(file, "")
	if err != nil {
		return nil, fmt.Errorf("read PCD: %w", err)
	}
	return pointcloud.ToKDTree(cloud), nil
}
