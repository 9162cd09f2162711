package targetfind

import "github.com/golang/geo/r3"

// Config holds parameters for scene segmentation and target selection.
type Config struct {
	GroundNormal        r3.Vector // Expected support plane normal
	PlaneIterations     int       // RANSAC iterations for plane segmentation
	PlaneAngleThreshold float64   // Max angle (degrees) between detected and expected normal
	PlaneDistThreshold  float64   // Max distance to plane for a point to belong to it
	ClusteringRadiusMm  float64   // Radius for neighbor-based clustering
	MinClusterSize      int       // Minimum points per cluster
	OutlierMeanK        int       // K for statistical outlier filter
	OutlierStdDev       float64   // Standard deviation threshold for outlier filter
	MaxDepthMm          float64   // Max distance from camera origin; 0 = no limit
	MinTargetPoints     int       // Minimum points for a cluster to qualify as the target
}

// DefaultConfig returns a Config with sensible defaults for a tabletop scene
// observed by a depth camera at roughly arm's length.
func DefaultConfig() Config {
	return Config{
		GroundNormal:        r3.Vector{X: 0, Y: 0, Z: 1},
		PlaneIterations:     2000,
		PlaneAngleThreshold: 5.0,
		PlaneDistThreshold:  3.0,
		ClusteringRadiusMm:  15.0,
		MinClusterSize:      50,
		OutlierMeanK:        8,
		OutlierStdDev:       1.25,
		MaxDepthMm:          1500.0,
		MinTargetPoints:     100,
	}
}
