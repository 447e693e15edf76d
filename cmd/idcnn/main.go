// Package main provides the idcnn command line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
)

const version = "v0.1.0"

const usage = `idcnn - dilated convolution + CRF sequence tagger

Commands:
  train      Train a tagger on a CoNLL corpus
  predict    Tag a corpus with a trained checkpoint
  inspect    Describe a checkpoint
  serve      Serve a checkpoint over HTTP
  version    Show version

Run "idcnn <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "train":
		err = runTrain(ctx, args, os.Stderr)
	case "predict":
		err = runPredict(ctx, args, os.Stdout, os.Stderr)
	case "inspect":
		err = runInspect(args, os.Stdout)
	case "serve":
		err = runServe(ctx, args, os.Stderr)
	case "version":
		fmt.Printf("idcnn %s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "idcnn: %v\n", err)
		os.Exit(1)
	}
}

// newLogger returns a text or JSON slog logger writing to w.
func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}
