package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpm4b/bpm4b/internal/chapters"
	"github.com/bpm4b/bpm4b/internal/config"
)

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	var chaptersFile string
	var policy string

	cmd := &cobra.Command{
		Use:   "metadata [TITLE START]...",
		Short: "Print the FFMETADATA1 document for a chapter list",
		Long: `Print the chapter metadata document a conversion would hand to ffmpeg,
without running ffmpeg. Takes the same chapter arguments as convert.`,
		Example: `  bpm4b metadata Intro 0 "Chapter 1" 6:30
  bpm4b metadata --chapters-file chapters.json > chapters.ffmeta`,
		RunE: func(cmd *cobra.Command, args []string) error {
			chs, err := collectChapters(chaptersFile, args)
			if err != nil {
				return err
			}

			cfg, err := ctx.loadConfig(func(o *config.Overrides) {
				o.ChapterPolicy = policy
			})
			if err != nil {
				return err
			}

			chs, err = cfg.Convert.ChapterPolicy.Apply(chs)
			if err != nil {
				return err
			}

			if err := chapters.WriteMetadata(cmd.OutOrStdout(), chs); err != nil {
				return fmt.Errorf("write metadata: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&chaptersFile, "chapters-file", "", "JSON file with [{\"title\": ..., \"start_time\": ...}] entries")
	cmd.Flags().StringVar(&policy, "chapter-policy", "", "Chapter ordering policy: passthrough, reject or sort")

	return cmd
}
