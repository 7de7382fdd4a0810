// Package main provides the ml3d CLI: the object detection pipeline over a
// directory of point clouds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const version = "v0.1.0-dev"

func main() {
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	command, rest := args[0], args[1:]

	switch command {
	case "test":
		return handleTest(ctx, rest, stdout)
	case "train":
		return handleTrain(rest)
	case "infer":
		return handleInfer(rest, stdout)
	case "runs":
		return handleRuns(rest, stdout)
	case "version":
		fmt.Fprintf(stdout, "ml3d %s\n", version)
		return nil
	case "help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `ml3d - 3D object detection pipeline

Usage: ml3d <command> [options]

Commands:
  test       Run the detector over the test split and report boxes
  train      Train the detector (not implemented)
  infer      Detect boxes in a single .bin point cloud
  runs       List test runs recorded in a results database
  version    Show version
  help       Show this help message

Common Flags:
  --config <file>      JSON run configuration
  --device <name>      gpu, cuda or cpu (default gpu, falls back to cpu)
  --ckpt <path>        Checkpoint file, overrides the configuration
  --log-level <level>  debug, info, warning or error

Examples:
  ml3d test --config run.json --device cpu
  ml3d infer --ckpt logs/ckpt_00080.born --points 000042.bin`)
}
