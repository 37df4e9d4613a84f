package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/service"
	"github.com/spf13/cobra"
)

type narrateFlags struct {
	out     string
	width   int
	height  int
	fps     int
	audio   bool
	srtOnly bool
}

func newNarrateCommand(logLevel *string) *cobra.Command {
	var flags narrateFlags

	cmd := &cobra.Command{
		Use:   "narrate <pages-dir>",
		Short: "Narrate one directory of page images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pagesDir, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(pagesDir)
			if err != nil {
				return fmt.Errorf("inspect pages directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", pagesDir)
			}

			cfg, err := loadConfig(*logLevel, false)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			opts := renderOptions(cfg.Render)
			if cmd.Flags().Changed("width") {
				opts.Width = flags.width
			}
			if cmd.Flags().Changed("height") {
				opts.Height = flags.height
			}
			if cmd.Flags().Changed("fps") {
				opts.FPS = flags.fps
			}
			if cmd.Flags().Changed("audio") {
				opts.BackgroundAudio = flags.audio
			}

			outDir := flags.out
			if outDir == "" {
				outDir = filepath.Join(pagesDir, "narration")
			}

			recognizer, err := newRecognizer(cfg.OCR, nil)
			if err != nil {
				return err
			}
			narrator := service.NewNarrator(recognizer, newRendererFactory(cfg.Render),
				service.WithPlanningPause(planningPause(cfg.Render)),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := narrator.Narrate(ctx, service.NarrateRequest{
				PagesDir:      pagesDir,
				OutputDir:     outDir,
				Options:       opts,
				SubtitlesOnly: flags.srtOnly,
			})
			if err != nil {
				service.NewDefaultErrorHandler().Handle(err)
				return err
			}
			printResult(cmd, result, opts, flags.srtOnly)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Output directory (default <pages-dir>/narration)")
	cmd.Flags().IntVar(&flags.width, "width", pipeline.DefaultRenderOptions().Width, "Video width in pixels")
	cmd.Flags().IntVar(&flags.height, "height", pipeline.DefaultRenderOptions().Height, "Video height in pixels")
	cmd.Flags().IntVar(&flags.fps, "fps", pipeline.DefaultRenderOptions().FPS, "Frame rate (24, 30 or 60)")
	cmd.Flags().BoolVar(&flags.audio, "audio", false, "Mix in a quiet background track")
	cmd.Flags().BoolVar(&flags.srtOnly, "srt-only", false, "Write subtitles and the motion plan without rendering video")
	return cmd
}

func printResult(cmd *cobra.Command, result *service.NarrateResult, opts pipeline.RenderOptions, srtOnly bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pages:     %d\n", result.Pages)
	fmt.Fprintf(out, "Captions:  %d (%.1fs, language %s)\n", result.Captions, float64(result.DurationMs)/1000, result.Language)
	fmt.Fprintf(out, "Subtitles: %s\n", result.SubtitlePath)
	fmt.Fprintf(out, "Motion:    %s\n", result.MotionPath)
	if !srtOnly {
		fmt.Fprintf(out, "Video:     %s (%dx%d@%d)\n", result.VideoPath, opts.Width, opts.Height, opts.FPS)
	}
}
