package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/biotinker/spyglass"
	"github.com/biotinker/spyglass/internal/creds"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

func main() {
	credsPath := flag.String("creds", "", "path to robot credentials JSON file (or set SPYGLASS_* env vars)")
	modelsDir := flag.String("models-dir", "", "directory for cached visibility models and trajectories (optional)")
	reachability := flag.String("reachability", "", "path to a reachability PCD cloud for density pruning (optional)")
	flag.Parse()

	logger := logging.NewDebugLogger("spyglass")

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
	logger.Info("Resources:", machine.ResourceNames())

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

	if err := spyglass.Run(ctx, r); err != nil {
		logger.Fatal(err)
	}
}
