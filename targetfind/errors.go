package targetfind

import "errors"

var (
	// ErrNilPointCloud is returned when a nil point cloud is passed in.
	ErrNilPointCloud = errors.New("point cloud is nil")

	// ErrTooFewPoints is returned when a point cloud has too few points to process.
	ErrTooFewPoints = errors.New("too few points in point cloud")

	// ErrNoTargetFound is returned when no cluster qualifies as the target body.
	ErrNoTargetFound = errors.New("no target cluster found in scene")
)
