package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/born-ml/idcnn/internal/serialization"
)

func runInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	ckptPath := fs.String("checkpoint", "", "Checkpoint to describe")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ckptPath == "" {
		return errors.New("inspect: -checkpoint is required")
	}

	ckpt, err := serialization.ReadFile(*ckptPath)
	if err != nil {
		return err
	}
	h := ckpt.Header
	fmt.Fprintf(stdout, "format:     %d\n", h.FormatVersion)
	fmt.Fprintf(stdout, "written by: %s\n", h.Version)
	fmt.Fprintf(stdout, "run:        %s\n", h.RunID)
	fmt.Fprintf(stdout, "created:    %s\n", h.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if c := h.Checkpoint; c != nil {
		fmt.Fprintf(stdout, "training:   epoch %d, step %d, loss %.4f, %s lr %g\n", c.Epoch, c.GlobalStep, c.Loss, c.Optimizer, c.LR)
	}
	for name, items := range h.Vocabularies {
		fmt.Fprintf(stdout, "vocabulary: %s (%d)\n", name, len(items))
	}
	fmt.Fprintf(stdout, "network:    %s\n", h.Network)
	fmt.Fprintf(stdout, "parameters: %d\n\n", ckpt.NumElements())

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSHAPE\tBYTES")
	for _, meta := range h.Tensors {
		fmt.Fprintf(tw, "%s\t%v\t%d\n", meta.Name, meta.Shape, meta.Size)
	}
	return tw.Flush()
}
