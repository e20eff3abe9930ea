package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"wavecache/internal/registry"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache contents and disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			reg, err := registry.Open(cfg)
			if err != nil {
				return err
			}
			defer reg.Close()

			stats, err := reg.Stats(cmd.Context())
			if err != nil {
				return err
			}
			total, free, err := reg.FreeSpace()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache directory: %s\n", reg.CacheDir())
			fmt.Fprintf(out, "Summary files:   %d (%d available, %d pending, %d orphaned)\n",
				stats.Entries, stats.Available, stats.Pending, stats.Orphaned)
			fmt.Fprintf(out, "Disk:            %s free of %s\n", formatBytes(free), formatBytes(total))

			if !verbose {
				return nil
			}

			entries, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No summary files tracked")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				state := "pending"
				if entry.Available {
					state = "available"
				}
				if entry.Refcount <= 0 {
					state = "orphaned"
				}
				rows = append(rows, []string{
					entry.FileName,
					filepath.Base(entry.AliasedPath),
					strconv.Itoa(entry.AliasChannel),
					strconv.FormatInt(entry.AliasStart, 10),
					strconv.FormatInt(entry.AliasLen, 10),
					strconv.Itoa(entry.Refcount),
					state,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Source", "Ch", "Start", "Len", "Refs", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every tracked summary file")
	return cmd
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
