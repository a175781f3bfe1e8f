package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/banshee-data/hypotrack/internal/monitoring"
	"github.com/banshee-data/hypotrack/internal/version"
)

// errUsage marks a bad invocation; run prints the usage text and exits 2.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	monitoring.SetLogger(log.New(stderr, "", log.LstdFlags).Printf)

	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command := args[0]
	rest := args[1:]

	var err error
	switch command {
	case "infer":
		err = handleInfer(ctx, rest, stdout, stderr)
	case "learn":
		err = handleLearn(ctx, rest, stdout, stderr)
	case "verify":
		err = handleVerify(ctx, rest, stdout, stderr)
	case "dot":
		err = handleDot(rest, stdout, stderr)
	case "weights":
		err = handleWeights(rest, stdout, stderr)
	case "runs":
		err = handleRuns(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "hypotrack version %s\n", version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "%s: %v\n\n", command, err)
		printUsage(stderr)
		return 2
	default:
		fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `hypotrack - hypothesis graph tracking by structured prediction

Usage: hypotrack <command> [options]

Commands:
  infer      Find the minimum-energy tracking for a model and weight vector
  learn      Learn a weight vector from a ground-truth result
  verify     Check a result against the tracking constraints
  dot        Render the hypothesis graph in Graphviz dot format
  weights    List the weight vector layout of a model
  runs       List learn and infer runs stored in a database
  version    Show hypotrack version
  help       Show this help message

Common Flags:
  -model <file>     Hypothesis graph JSON file
  -config <file>    Settings JSON merged over the built-in defaults
                    (settings embedded in the model file take precedence)
  -db <file>        SQLite database recording runs, weights and results
  -verbose          Log solver progress

Examples:
  hypotrack learn -model train.json -gt truth.json -out weights.json -plot curve.png
  hypotrack infer -model test.json -weights weights.json -out result.json -dot result.dot
  hypotrack infer -model test.json -db runs.db -run <uuid> -out result.json
  hypotrack verify -model test.json -result result.json

Use 'hypotrack <command> -h' for command-specific help.`)
}
