package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"wavecache/internal/block"
	"wavecache/internal/decode"
	"wavecache/internal/fileutil"
	"wavecache/internal/logging"
	"wavecache/internal/project"
	"wavecache/internal/registry"
	"wavecache/internal/scheduler"
)

const defaultBlockSamples = 262144

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var projectPath string
	var blockSamples int64

	cmd := &cobra.Command{
		Use:   "build <audio-file-or-dir>...",
		Short: "Compute waveform summaries for audio files into a project",
		Long: `Build scans the given audio files (or directories of them), splits every
channel into fixed-size blocks, and computes min/max/RMS summaries in the
background. The resulting project document can be reloaded later; blocks
whose computation did not finish reload as placeholders and resume.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if blockSamples <= 0 {
				return fmt.Errorf("--block-samples must be positive")
			}

			files, err := collectAudioFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported audio files found (wav, mp3, ogg)")
			}

			if projectPath == "" {
				projectPath = filepath.Join(cfg.Paths.ProjectDir, "project.wavecache.json")
			}

			reg, err := registry.Open(cfg)
			if err != nil {
				return err
			}
			defer reg.Close()

			opts := block.Options{
				Store:  reg.NewSummaryStore(),
				Alloc:  reg,
				Logger: logger,
			}

			var blocks []*block.Block
			if fileutil.Exists(projectPath) {
				blocks, err = project.Load(projectPath, opts)
				if err != nil {
					return err
				}
				logger.Info("resuming existing project",
					logging.String("project", projectPath),
					logging.Int("blocks", len(blocks)),
				)
			} else {
				blocks, err = planBlocks(files, blockSamples, opts, logger)
				if err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr := scheduler.NewManager(cfg, logger)
			if err := mgr.Start(runCtx); err != nil {
				return err
			}

			pending := project.Pending(blocks)
			for _, b := range pending {
				if err := mgr.Submit(b); err != nil {
					mgr.Stop()
					return err
				}
			}
			logger.Info("computing summaries",
				logging.Int("blocks", len(blocks)),
				logging.Int("pending", len(pending)),
			)

			waitErr := mgr.Wait(runCtx)
			mgr.Stop()

			if err := project.Save(projectPath, blocks); err != nil {
				return err
			}

			status := mgr.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project saved to %s\n", projectPath)
			fmt.Fprintf(out, "Blocks: %d total, %d computed, %d skipped, %d failed\n",
				len(blocks), status.Completed, status.Skipped, status.Failed)
			if waitErr != nil {
				fmt.Fprintln(out, "Interrupted; unfinished blocks were saved as placeholders and will resume on the next build")
			}
			if status.Failed > 0 {
				return fmt.Errorf("%d blocks failed; re-run build to retry", status.Failed)
			}
			return waitErr
		},
	}

	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "Project document path (resumes if it exists)")
	cmd.Flags().Int64Var(&blockSamples, "block-samples", defaultBlockSamples, "Samples per summary block")
	return cmd
}

func planBlocks(files []string, blockSamples int64, opts block.Options, logger *slog.Logger) ([]*block.Block, error) {
	var blocks []*block.Block
	for _, file := range files {
		info, err := decode.Probe(file)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", file, err)
		}
		for ch := 0; ch < info.Channels; ch++ {
			for start := int64(0); start < info.Frames; start += blockSamples {
				length := blockSamples
				if start+length > info.Frames {
					length = info.Frames - start
				}
				b := block.New(file, ch, start, length, opts)
				b.SetStart(start)
				blocks = append(blocks, b)
			}
		}
		logger.Info("planned file",
			logging.String("file", file),
			logging.Int("channels", info.Channels),
			logging.Int64("frames", info.Frames),
		)
	}
	return blocks, nil
}

func collectAudioFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !supportedAudioFile(arg) {
				return nil, fmt.Errorf("unsupported audio file %q", arg)
			}
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && supportedAudioFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func supportedAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave", ".mp3", ".ogg", ".oga":
		return true
	}
	return false
}
