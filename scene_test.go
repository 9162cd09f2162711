package spyglass

import (
	"testing"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"
)

func testSceneIntrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{
		Width: 640, Height: 480,
		Fx: 600, Fy: 600, Ppx: 320, Ppy: 240,
	}
}

func TestTargetInView(t *testing.T) {
	intrinsics := testSceneIntrinsics()
	camera := spatialmath.NewZeroPose()

	// On the optical axis, in front of the camera: principal point.
	ahead := spatialmath.NewPoseFromPoint(r3.Vector{Z: 500})
	if !targetInView(intrinsics, camera, ahead) {
		t.Error("target on the optical axis should be in view")
	}

	// Behind the image plane.
	behind := spatialmath.NewPoseFromPoint(r3.Vector{Z: -500})
	if targetInView(intrinsics, camera, behind) {
		t.Error("target behind the camera must never be in view")
	}

	// In front, but projecting far outside the image bounds.
	offAxis := spatialmath.NewPoseFromPoint(r3.Vector{X: 1000, Z: 500})
	if targetInView(intrinsics, camera, offAxis) {
		t.Error("target projecting outside the image bounds should not be in view")
	}

	// The camera pose participates: move the camera so the off-axis target
	// sits straight ahead of it.
	shifted := spatialmath.NewPoseFromPoint(r3.Vector{X: 1000})
	if !targetInView(intrinsics, shifted, offAxis) {
		t.Error("target ahead of the translated camera should be in view")
	}
}

func occluderIndex(points ...r3.Vector) *pointcloud.KDTree {
	cloud := pointcloud.NewBasicEmpty()
	for _, pt := range points {
		cloud.Set(pt, nil) //nolint:errcheck
	}
	return pointcloud.ToKDTree(cloud)
}

func TestRayOccluded(t *testing.T) {
	from := r3.Vector{}
	to := r3.Vector{Z: 500}

	// No index at all: never occluded.
	if rayOccluded(nil, from, to) {
		t.Error("nil obstacle index must not occlude")
	}

	// Obstacle far off to the side: the ray is clear.
	clear := occluderIndex(r3.Vector{X: 300, Z: 250})
	if rayOccluded(clear, from, to) {
		t.Error("obstacle far from the ray should not occlude")
	}

	// Obstacle sitting on the ray midpoint: blocked.
	blocked := occluderIndex(r3.Vector{Z: 250})
	if !rayOccluded(blocked, from, to) {
		t.Error("obstacle on the ray should occlude")
	}

	// Points at the target itself are the target's own surface; the walk
	// stops short of them so they never count as occluders.
	surface := occluderIndex(to, r3.Vector{Z: 490}, r3.Vector{Z: 475})
	if rayOccluded(surface, from, to) {
		t.Error("target surface points must not occlude the target")
	}

	// A target closer than one sample step is always reachable.
	near := occluderIndex(r3.Vector{Z: 10})
	if rayOccluded(near, from, r3.Vector{Z: 15}) {
		t.Error("sub-step distances must not occlude")
	}
}

func TestRayOccludedOffAxisTolerance(t *testing.T) {
	from := r3.Vector{}
	to := r3.Vector{Z: 500}

	// Just inside the corridor radius: blocked.
	inside := occluderIndex(r3.Vector{X: occlusionRadiusMm - 1, Z: 250})
	if !rayOccluded(inside, from, to) {
		t.Error("obstacle inside the corridor radius should occlude")
	}

	// Comfortably outside it: clear.
	outside := occluderIndex(r3.Vector{X: 2*occlusionRadiusMm + 1, Z: 250})
	if rayOccluded(outside, from, to) {
		t.Error("obstacle outside the corridor radius should not occlude")
	}
}
