package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/biotinker/spyglass"
	"github.com/biotinker/spyglass/internal/creds"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

var steps = map[string]func(context.Context, *spyglass.Robot) error{
	"observe": spyglass.Observe,
	"reset":   spyglass.Reset,
}

const validSteps = "survey, observe, reset"

func main() {
	credsPath := flag.String("creds", "", "path to robot credentials JSON file (or set SPYGLASS_* env vars)")
	step := flag.String("step", "", "step to run: "+validSteps)
	modelsDir := flag.String("models-dir", "", "directory for cached visibility models and trajectories (optional)")
	reachability := flag.String("reachability", "", "path to a reachability PCD cloud for density pruning (optional)")
	flag.Parse()

	logger := logging.NewLogger("spyglass-cli")

	if *step == "" {
		logger.Fatal("-step flag is required; valid steps: " + validSteps)
	}
	if *step != "survey" {
		if _, ok := steps[*step]; !ok {
			logger.Fatalf("unknown step %q; valid steps: %s", *step, validSteps)
		}
	}

	robotCreds, err := creds.Load(*credsPath)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	machine, err := client.New(
		ctx,
		robotCreds.Address,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			robotCreds.EntityID,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: robotCreds.APIKey,
			})),
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer machine.Close(context.Background())

	logger.Info("Connected to robot")

	r, err := spyglass.NewRobot(ctx, machine, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if *modelsDir != "" {
		r.ModelsDir = *modelsDir
	}
	if *reachability != "" {
		r.ReachabilityPath = *reachability
	}

	logger.Infof("=== Running step: %s ===", *step)

	if *step == "survey" {
		if err := runSurvey(ctx, r, logger); err != nil {
			logger.Fatal(err)
		}
		return
	}

	if err := steps[*step](ctx, r); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("Step %s completed successfully", *step)
}

func runSurvey(ctx context.Context, r *spyglass.Robot, logger logging.Logger) error {
	if err := spyglass.Survey(ctx, r); err != nil {
		return fmt.Errorf("survey: %w", err)
	}

	model := r.Model()
	if model == nil {
		logger.Info("No visibility model available")
		return nil
	}

	// Print a model summary.
	logger.Infof("Manipulator: %s", model.ManipulatorName())
	logger.Infof("Viewpoints: %d", len(model.Viewpoints()))
	if intrinsics := model.Intrinsics(); intrinsics != nil {
		logger.Infof("Sensor calibration: %dx%d fx=%.1f fy=%.1f", intrinsics.Width, intrinsics.Height, intrinsics.Fx, intrinsics.Fy)
	}
	for i, vp := range model.Viewpoints() {
		pt := vp.Point()
		logger.Debugf("  Viewpoint %d: target-frame pos=(%.1f, %.1f, %.1f)", i, pt.X, pt.Y, pt.Z)
	}

	return nil
}
