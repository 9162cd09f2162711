package viewpoint

// Config holds all configuration for visibility model generation and pruning.
type Config struct {
	Generator GeneratorConfig
	Filter    FilterConfig
	Prune     PruneConfig
}

// GeneratorConfig holds parameters for candidate viewpoint generation.
type GeneratorConfig struct {
	ShellRadiiMm    []float64 // Standoff radius of each spherical shell in mm
	SamplesPerShell int       // Candidate directions sampled per shell
	ExtentsPath     string    // Optional extents file; overrides shell sampling when present
}

// FilterConfig holds parameters for the feasibility filter.
type FilterConfig struct {
	CheckCollision  bool // Pass the collision flag to the IK solver
	CheckVisibility bool // Query the visibility oracle for IK-feasible candidates
	Randomize       bool // Scan candidates in a uniformly random order
}

// PruneConfig holds parameters for density-based pruning against a
// reachability index.
type PruneConfig struct {
	ThreshMm        float64 // Neighbor search radius in mm
	MinNeighbors    int     // Keep candidates with strictly more neighbors than this
	MaxDistMm       float64 // Discard candidates with a larger standoff; 0 = no limit
	TranslationOnly bool    // Only translation-only pruning is supported
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Generator: GeneratorConfig{
			ShellRadiiMm:    []float64{100, 150, 200, 250, 300},
			SamplesPerShell: 36,
		},
		Filter: FilterConfig{
			CheckCollision:  true,
			CheckVisibility: true,
		},
		Prune: PruneConfig{
			ThreshMm:        40.0,
			MinNeighbors:    10,
			MaxDistMm:       0,
			TranslationOnly: true,
		},
	}
}
