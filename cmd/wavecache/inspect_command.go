package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wavecache/internal/project"
	"wavecache/internal/summary"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var coarseFrames int

	cmd := &cobra.Command{
		Use:         "inspect <summary-file|project-file>",
		Short:       "Dump a summary file or project document",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if strings.EqualFold(filepath.Ext(path), ".json") {
				return inspectProject(cmd, path)
			}
			return inspectSummary(cmd, path, coarseFrames)
		},
	}

	cmd.Flags().IntVar(&coarseFrames, "coarse-frames", 16, "Number of coarse frames to print")
	return cmd
}

func inspectSummary(cmd *cobra.Command, path string, coarseFrames int) error {
	rec, err := summary.ReadFile(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Summary file: %s\n", path)
	fmt.Fprintf(out, "Samples:      %d\n", rec.Len)
	fmt.Fprintf(out, "Tiers:        %d fine frames (%d samples each), %d coarse frames (%d samples each)\n",
		rec.FineFrames(), summary.FineFrameSamples, rec.CoarseFrames(), summary.CoarseFrameSamples)
	fmt.Fprintf(out, "Stats:        min=%g max=%g rms=%g\n", rec.Min, rec.Max, rec.RMS)

	n := int(rec.CoarseFrames())
	if coarseFrames >= 0 && coarseFrames < n {
		n = coarseFrames
	}
	if n == 0 {
		return nil
	}
	frames := make([]summary.Frame, n)
	if err := rec.ReadCoarse(frames, 0); err != nil {
		return err
	}
	rows := make([][]string, 0, n)
	for i, frame := range frames {
		rows = append(rows, []string{
			strconv.Itoa(i),
			formatFloat(frame.Min),
			formatFloat(frame.Max),
			formatFloat(frame.RMS),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Frame", "Min", "Max", "RMS"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func inspectProject(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc project.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project:  %s\n", path)
	fmt.Fprintf(out, "Version:  %d, saved %s\n", doc.Version, doc.SavedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Blocks:   %d\n", len(doc.Blocks))

	rows := make([][]string, 0, len(doc.Blocks))
	for _, rec := range doc.Blocks {
		rows = append(rows, []string{
			string(rec.Kind),
			filepath.Base(rec.AliasedPath),
			strconv.Itoa(rec.AliasChannel),
			strconv.FormatInt(rec.AliasStart, 10),
			strconv.FormatInt(rec.AliasLen, 10),
			rec.SummaryFile,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Kind", "Source", "Ch", "Start", "Len", "Summary file"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 6, 32)
}
