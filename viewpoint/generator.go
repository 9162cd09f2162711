package viewpoint

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/spatialmath"
)

// goldenAngle spaces successive sample directions so that no shell develops
// clustered poles.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// ViewpointsOnShells samples candidate camera poses on concentric spherical
// shells around the target origin. Each pose sits on a shell and looks back
// at the origin along its local +Z axis. Sampling is fully deterministic:
// the same spec always yields the same sequence in the same order.
func ViewpointsOnShells(spec GeneratorConfig) []spatialmath.Pose {
	n := spec.SamplesPerShell
	if n <= 0 {
		return nil
	}
	viewpoints := make([]spatialmath.Pose, 0, n*len(spec.ShellRadiiMm))
	for _, radius := range spec.ShellRadiiMm {
		if radius <= 0 {
			continue
		}
		for i := 0; i < n; i++ {
			// Golden-spiral distribution over the full sphere.
			z := 1 - 2*(float64(i)+0.5)/float64(n)
			ring := math.Sqrt(1 - z*z)
			theta := goldenAngle * float64(i)
			dir := r3.Vector{
				X: ring * math.Cos(theta),
				Y: ring * math.Sin(theta),
				Z: z,
			}
			viewpoints = append(viewpoints, lookAtOrigin(dir.Mul(radius)))
		}
	}
	return viewpoints
}

// ViewpointsFromExtents converts precomputed extents (camera positions in
// the target frame, direction scaled by standoff distance) into candidate
// poses looking at the target origin.
func ViewpointsFromExtents(extents []r3.Vector) []spatialmath.Pose {
	viewpoints := make([]spatialmath.Pose, 0, len(extents))
	for _, e := range extents {
		if e.Norm() < 1e-9 {
			continue
		}
		viewpoints = append(viewpoints, lookAtOrigin(e))
	}
	return viewpoints
}

// lookAtOrigin builds a pose at the given position whose local +Z axis
// points at the frame origin.
func lookAtOrigin(pos r3.Vector) spatialmath.Pose {
	look := pos.Mul(-1)
	n := look.Norm()
	if n < 1e-9 {
		return spatialmath.NewPoseFromPoint(pos)
	}
	look = look.Mul(1 / n)
	return spatialmath.NewPose(pos, &spatialmath.OrientationVector{
		OX: look.X,
		OY: look.Y,
		OZ: look.Z,
	})
}
