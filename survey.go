package spyglass

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"

	"github.com/biotinker/spyglass/targetfind"
	"github.com/biotinker/spyglass/viewpoint"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
)

// Survey moves the arm to its viewing position and polls the camera until a
// target body is found in the scene. It then prepares the visibility model
// for that target: loaded from disk when a cached artifact exists, otherwise
// generated against the live scene, pruned, and saved. Returns when the
// model is ready or the context is cancelled.
func Survey(ctx context.Context, r *Robot) error {
	r.logger.Info("Moving arm to viewing position")
	if err := r.moveArmDirectToJoints(ctx, SurveyViewingJoints); err != nil {
		return err
	}

	r.logger.Info("Watching for a target body...")
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	finder := targetfind.NewFinder(nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cloud, err := r.cam.NextPointCloud(ctx, nil)
		if err != nil {
			r.logger.Warnf("Camera error: %v", err)
			continue
		}

		r.logger.Infof("Point cloud has %d points, downsampling...", cloud.Size())
		downsampled := downsampleCloud(r, cloud, 30000)

		worldCloud, err := transformCloudToWorldFrame(ctx, r, downsampled)
		if err != nil {
			r.logger.Warnf("Failed to transform cloud to world frame: %v", err)
			continue
		}

		result, err := finder.Find(ctx, worldCloud)
		if err != nil {
			r.logger.Warnf("No target in this scan: %v", err)
			continue
		}

		pos := result.TargetPose.Point()
		r.logger.Infof("Target found: %d points, radius=%.1fmm, world pos=(%.1f, %.1f, %.1f), %d obstacle cluster(s)",
			result.TargetCloud.Size(), result.TargetRadiusMm, pos.X, pos.Y, pos.Z, len(result.ObstacleClouds))

		r.state.TargetPose = result.TargetPose
		r.state.TargetCloud = result.TargetCloud
		r.state.ObstacleIndex = result.ObstacleIndex()

		if err := saveSurveyClouds(r, worldCloud, result); err != nil {
			r.logger.Warnf("Failed to save survey point clouds: %v", err)
		}

		return prepareModel(ctx, r, result)
	}
}

// prepareModel loads the cached visibility model for the bound arm/camera
// pair, or generates one against the live scene when no usable cache exists.
func prepareModel(ctx context.Context, r *Robot, result *targetfind.Result) error {
	obstacles := referenceframe.NewGeometriesInFrame(worldFrame, result.ObstacleGeometries())
	worldState, err := referenceframe.NewWorldState([]*referenceframe.GeometriesInFrame{obstacles}, nil)
	if err != nil {
		return fmt.Errorf("build world state: %w", err)
	}

	r.state.Obstacles = worldState
	scene := newLiveScene(ctx, r, worldState)
	model := viewpoint.NewModel(scene, r.logger, viewpoint.DefaultConfig())
	if r.ReachabilityPath != "" {
		model.SetReachabilityPath(r.ReachabilityPath)
	}

	if path := r.modelPath(); path != "" {
		loaded, err := model.Load(path)
		if err != nil {
			return fmt.Errorf("load visibility model: %w", err)
		}
		if loaded {
			r.model = model
			return nil
		}
	}

	r.logger.Info("No cached visibility model; generating against the live scene")
	if err := model.Generate(DefaultPreshapes); err != nil {
		return fmt.Errorf("generate visibility model: %w", err)
	}
	if !model.Has() {
		return fmt.Errorf("%w: no candidate viewpoint was reachable and visible", viewpoint.ErrNoViewpoints)
	}

	pruned, err := model.Prune()
	if err != nil {
		return fmt.Errorf("prune visibility model: %w", err)
	}
	model.SetViewpoints(pruned)
	if !model.Has() {
		return fmt.Errorf("%w: pruning removed every viewpoint", viewpoint.ErrNoViewpoints)
	}

	if path := r.modelPath(); path != "" {
		if err := model.Save(path); err != nil {
			r.logger.Warnf("Failed to cache visibility model: %v", err)
		}
	}

	r.model = model
	return nil
}

// downsampleCloud strides the cloud down to roughly maxPoints.
func downsampleCloud(r *Robot, cloud pointcloud.PointCloud, maxPoints int) pointcloud.PointCloud {
	step := cloud.Size() / maxPoints
	if step < 1 {
		step = 1
	}
	downsampled := pointcloud.NewBasicEmpty()
	i := 0
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		if i%step == 0 {
			if err := downsampled.Set(p, d); err != nil {
				r.logger.Warnf("Failed to add point: %v", err)
			}
		}
		i++
		return true
	})
	return downsampled
}

// transformCloudToWorldFrame moves a camera-frame cloud into the world frame
// using the camera's current pose from the frame system.
func transformCloudToWorldFrame(ctx context.Context, r *Robot, cloud pointcloud.PointCloud) (pointcloud.PointCloud, error) {
	cameraPoseInWorld, err := r.fsSvc.GetPose(ctx, r.cam.Name().Name, "", nil, nil)
	if err != nil {
		return nil, err
	}
	transformed := pointcloud.NewBasicPointCloud(cloud.Size())
	if err := pointcloud.ApplyOffset(cloud, cameraPoseInWorld.Pose(), transformed); err != nil {
		return nil, fmt.Errorf("transform point cloud: %w", err)
	}
	return transformed, nil
}

// saveSurveyClouds writes the world-frame scene and target clouds to PCD
// files for offline inspection. No-op when ModelsDir is unset.
func saveSurveyClouds(r *Robot, scene pointcloud.PointCloud, result *targetfind.Result) error {
	if r.ModelsDir == "" {
		return nil
	}
	outputDir := filepath.Join(r.ModelsDir, "pointclouds")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	scenePath := filepath.Join(outputDir, "scene_world.pcd")
	if err := savePointCloudToPCD(scene, scenePath); err != nil {
		return fmt.Errorf("save scene cloud: %w", err)
	}
	r.logger.Infof("Saved world-frame scene cloud to %s (%d points)", scenePath, scene.Size())

	targetPath := filepath.Join(outputDir, "target_world.pcd")
	if err := savePointCloudToPCD(result.TargetCloud, targetPath); err != nil {
		return fmt.Errorf("save target cloud: %w", err)
	}
	r.logger.Infof("Saved world-frame target cloud to %s (%d points)", targetPath, result.TargetCloud.Size())

	return nil
}

// savePointCloudToPCD writes a point cloud to a PCD file in binary format.
func savePointCloudToPCD(cloud pointcloud.PointCloud, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if err := pointcloud.ToPCD(cloud, file, pointcloud.PCDBinary); err != nil {
		return fmt.Errorf("write PCD: %w", err)
	}

	return nil
}
