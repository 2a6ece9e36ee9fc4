package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bpm4b/bpm4b/internal/config"
	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
	"github.com/bpm4b/bpm4b/internal/validation"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var chaptersFile string
	var force bool
	var ffmpegPath string
	var policy string

	cmd := &cobra.Command{
		Use:   "convert INPUT OUTPUT [TITLE START]...",
		Short: "Convert an MP3 file to M4B",
		Long: `Convert an MP3 file to an M4B audiobook.

Chapters are given as TITLE START pairs after the output path. START is
seconds (390, 390.5) or minutes and seconds (6:30, 6:30.5). Each chapter
ends where the next one starts.

A START beginning with "-" reads as a flag; put the positional arguments
after "--" to pass negative start times.`,
		Example: `  bpm4b convert input.mp3 output.m4b
  bpm4b convert input.mp3 output.m4b "Chapter 1" 0
  bpm4b convert input.mp3 output.m4b Intro 0 "Chapter 1" 6:30
  bpm4b convert input.mp3 output.m4b --chapters-file chapters.json
  bpm4b convert --chapter-policy passthrough -- input.mp3 output.m4b Prologue -5 "Chapter 1" 0`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, output := args[0], args[1]

			chs, err := collectChapters(chaptersFile, args[2:])
			if err != nil {
				return err
			}

			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file %q not found", input)
			}

			cfg, err := ctx.loadConfig(func(o *config.Overrides) {
				o.FFmpegPath = ffmpegPath
				o.ChapterPolicy = policy
			})
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			if dir := filepath.Dir(output); dir != "" {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}

			mgr, err := scratch.NewManager(cfg.Convert.ScratchPath, "job", log)
			if err != nil {
				return err
			}
			svc := service.NewConvertService(cfg.Convert, mgr, validation.New(), log)

			if _, err := svc.CheckEncoder(cmd.Context()); err != nil {
				return fmt.Errorf("ffmpeg is not installed or not in PATH (install it from https://ffmpeg.org/download.html or set FFMPEG_PATH): %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Converting: %s -> %s\n", input, output)

			result, err := svc.Convert(cmd.Context(), service.ConvertRequest{
				SourcePath: input,
				OutputPath: output,
				Chapters:   chs,
				Overwrite:  force,
			})
			if err != nil {
				printEncoderOutput(cmd, err)
				return fmt.Errorf("conversion failed: %w", err)
			}

			for _, ch := range result.Chapters {
				fmt.Fprintf(out, "  %s\n", ch)
			}
			fmt.Fprintf(out, "✓ Conversion complete: %s (%d chapters, %s)\n",
				result.OutputPath, len(result.Chapters), result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&chaptersFile, "chapters-file", "", "JSON file with [{\"title\": ..., \"start_time\": ...}] entries")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite the output file if it exists")
	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "", "Path to the ffmpeg binary")
	cmd.Flags().StringVar(&policy, "chapter-policy", "", "Chapter ordering policy: passthrough, reject or sort")

	return cmd
}

// printEncoderOutput shows the captured ffmpeg stderr of a failed run.
func printEncoderOutput(cmd *cobra.Command, err error) {
	var domainErr *domainerrors.Error
	if !domainerrors.As(err, &domainErr) {
		return
	}
	details, ok := domainErr.Details.(map[string]string)
	if !ok || details["stderr"] == "" {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "ffmpeg output:\n%s\n", strings.TrimRight(details["stderr"], "\n"))
}
