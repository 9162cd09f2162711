package targetfind

import (
	"context"
	"fmt"
	"sort"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/vision/segmentation"
)

// Result holds the output of target selection on a scene cloud.
type Result struct {
	// TargetPose is the target centroid, in the same frame as the input cloud.
	TargetPose spatialmath.Pose

	// TargetCloud holds the points belonging to the target cluster.
	TargetCloud pointcloud.PointCloud

	// TargetRadiusMm is the bounding radius of the target cluster about its centroid.
	TargetRadiusMm float64

	// ObstacleClouds holds every non-target cluster.
	ObstacleClouds []pointcloud.PointCloud

	// Plane is the detected support plane, or nil when segmentation found none.
	Plane pointcloud.Plane
}

// Finder segments a scene point cloud and picks out the observation target.
type Finder struct {
	cfg Config
}

// NewFinder creates a Finder with the given configuration, or defaults if nil.
func NewFinder(cfg *Config) *Finder {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	return &Finder{cfg: *cfg}
}

// Find preprocesses the cloud (depth filter, outlier removal, plane
// segmentation), clusters what remains, and selects the largest cluster as
// the target. Everything else becomes obstacle clusters.
func (f *Finder) Find(ctx context.Context, cloud pointcloud.PointCloud) (*Result, error) {
	if cloud == nil {
		return nil, ErrNilPointCloud
	}
	if cloud.Size() < 4 {
		return nil, ErrTooFewPoints
	}

	current := cloud
	if f.cfg.MaxDepthMm > 0 {
		depthFiltered, err := filterByDepth(current, f.cfg.MaxDepthMm)
		if err != nil {
			return nil, err
		}
		current = depthFiltered
	}

	// Statistical outlier removal.
	filtered := pointcloud.NewBasicEmpty()
	filterFn, err := pointcloud.StatisticalOutlierFilter(f.cfg.OutlierMeanK, f.cfg.OutlierStdDev)
	if err != nil {
		return nil, err
	}
	if err := filterFn(current, filtered); err != nil {
		return nil, err
	}

	// Plane segmentation (soft failure; a scene without a dominant plane is
	// clustered as-is).
	var plane pointcloud.Plane
	var remaining pointcloud.PointCloud
	plane, remaining, err = segmentation.SegmentPlaneWRTGround(
		ctx,
		filtered,
		f.cfg.PlaneIterations,
		f.cfg.PlaneAngleThreshold,
		f.cfg.PlaneDistThreshold,
		f.cfg.GroundNormal,
	)
	if err != nil {
		plane = nil
		remaining = filtered
	}

	clusters, err := clusterBySize(remaining, f.cfg.ClusteringRadiusMm, f.cfg.MinClusterSize)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, ErrNoTargetFound
	}

	// Clusters come back largest-first; the largest is the target.
	target := clusters[0]
	if target.Size() < f.cfg.MinTargetPoints {
		return nil, fmt.Errorf("%w: largest cluster has %d points, need %d",
			ErrNoTargetFound, target.Size(), f.cfg.MinTargetPoints)
	}

	center := centroid(target)
	return &Result{
		TargetPose:     spatialmath.NewPoseFromPoint(center),
		TargetCloud:    target,
		TargetRadiusMm: boundingRadius(target, center),
		ObstacleClouds: clusters[1:],
		Plane:          plane,
	}, nil
}

// ObstacleIndex merges the obstacle clusters into a single kd-tree for
// nearest-neighbor queries. Returns nil when there are no obstacles.
func (r *Result) ObstacleIndex() *pointcloud.KDTree {
	if len(r.ObstacleClouds) == 0 {
		return nil
	}
	merged := pointcloud.NewBasicEmpty()
	for _, c := range r.ObstacleClouds {
		c.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
			//nolint:errcheck
			merged.Set(p, d)
			return true
		})
	}
	return pointcloud.ToKDTree(merged)
}

// ObstacleGeometries returns a bounding sphere per obstacle cluster, suitable
// for a motion planning world state.
func (r *Result) ObstacleGeometries() []spatialmath.Geometry {
	var geoms []spatialmath.Geometry
	for i, c := range r.ObstacleClouds {
		center := centroid(c)
		radius := boundingRadius(c, center)
		if radius <= 0 {
			continue
		}
		sphere, err := spatialmath.NewSphere(
			spatialmath.NewPoseFromPoint(center),
			radius,
			fmt.Sprintf("obstacle_%d", i),
		)
		if err != nil {
			continue
		}
		geoms = append(geoms, sphere)
	}
	return geoms
}

// clusterBySize groups the cloud into connected components under the given
// neighbor radius and returns them ordered largest-first. Components smaller
// than minSize are discarded.
func clusterBySize(cloud pointcloud.PointCloud, radiusMm float64, minSize int) ([]pointcloud.PointCloud, error) {
	if cloud.Size() == 0 {
		return nil, nil
	}

	kd := pointcloud.ToKDTree(cloud)
	segments := segmentation.NewSegments()
	assigned := make(map[r3.Vector]bool, cloud.Size())
	nextCluster := 0

	var floodErr error
	cloud.Iterate(0, 0, func(seed r3.Vector, seedData pointcloud.Data) bool {
		if assigned[seed] {
			return true
		}
		// Flood the whole component reachable from this seed before moving
		// on, assigning each point as it is discovered.
		assigned[seed] = true
		if floodErr = segments.AssignCluster(seed, seedData, nextCluster); floodErr != nil {
			return false
		}
		frontier := []r3.Vector{seed}
		for len(frontier) > 0 {
			at := frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
			for _, nb := range kd.RadiusNearestNeighbors(at, radiusMm, false) {
				if assigned[nb.P] {
					continue
				}
				assigned[nb.P] = true
				if floodErr = segments.AssignCluster(nb.P, nb.D, nextCluster); floodErr != nil {
					return false
				}
				frontier = append(frontier, nb.P)
			}
		}
		nextCluster++
		return true
	})
	if floodErr != nil {
		return nil, floodErr
	}

	clusters := pointcloud.PrunePointClouds(segments.PointClouds(), minSize)
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Size() > clusters[j].Size()
	})
	return clusters, nil
}

// filterByDepth drops points outside the [0, maxDepthMm] window along the
// optical axis. Depth cameras report Z as distance from the sensor.
func filterByDepth(cloud pointcloud.PointCloud, maxDepthMm float64) (pointcloud.PointCloud, error) {
	near := pointcloud.NewBasicPointCloud(cloud.Size())
	cloud.Iterate(0, 0, func(pt r3.Vector, d pointcloud.Data) bool {
		if pt.Z < 0 || pt.Z > maxDepthMm {
			return true
		}
		//nolint:errcheck
		near.Set(pt, d)
		return true
	})
	if near.Size() < 4 {
		return nil, ErrTooFewPoints
	}
	return near, nil
}

func centroid(cloud pointcloud.PointCloud) r3.Vector {
	var sum r3.Vector
	n := 0
	cloud.Iterate(0, 0, func(pt r3.Vector, _ pointcloud.Data) bool {
		sum = sum.Add(pt)
		n++
		return true
	})
	if n == 0 {
		return r3.Vector{}
	}
	return sum.Mul(1 / float64(n))
}

func boundingRadius(cloud pointcloud.PointCloud, center r3.Vector) float64 {
	max := 0.0
	cloud.Iterate(0, 0, func(pt r3.Vector, _ pointcloud.Data) bool {
		if d := pt.Sub(center).Norm(); d > max {
			max = d
		}
		return true
	})
	return max
}
