package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"time"

	"github.com/born-ml/idcnn/internal/server"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ckptPath := fs.String("checkpoint", "", "Checkpoint written by train")
	addr := fs.String("addr", ":8080", "Listen address")
	batchSize := fs.Int("batch", 32, "Sentences per batch")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	verbose := fs.Bool("v", false, "Log every request")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ckptPath == "" {
		return errors.New("serve: -checkpoint is required")
	}
	logger, err := newLogger(stderr, *logFormat, *verbose)
	if err != nil {
		return err
	}

	model, ckpt, words, tags, err := loadTagger(*ckptPath)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(model, ckpt.Header, words, tags, *batchSize, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *addr, "run_id", ckpt.Header.RunID, "params", model.NumParameters())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
