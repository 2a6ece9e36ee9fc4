package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bpm4b/bpm4b/internal/chapters"
	"github.com/bpm4b/bpm4b/internal/media/probe"
)

// maxParallelInspect bounds concurrent file reads.
const maxParallelInspect = 4

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Show tags, duration and chapters of audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]*probe.Info, len(args))

			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxParallelInspect)
			for i, path := range args {
				g.Go(func() error {
					info, err := probe.Inspect(gctx, path)
					if err != nil {
						return err
					}
					infos[i] = info
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, info := range infos {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprint(out, renderInfo(info))
			}
			return nil
		},
	}
}

func renderInfo(info *probe.Info) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n", info.Path)
	fmt.Fprintf(&sb, "  Format:   %s\n", info.Format)
	fmt.Fprintf(&sb, "  Duration: %s\n", formatDuration(info.Duration))
	for _, field := range []struct{ label, value string }{
		{"Title", info.Title},
		{"Artist", info.Artist},
		{"Album", info.Album},
	} {
		if field.value != "" {
			fmt.Fprintf(&sb, "  %-9s %s\n", field.label+":", field.value)
		}
	}

	if len(info.Chapters) == 0 {
		sb.WriteString("  No chapters\n")
		return sb.String()
	}

	rows := make([][]string, 0, len(info.Chapters))
	for i, ch := range info.Chapters {
		end := "end"
		if ch.End != nil {
			end = chapters.FormatClock(*ch.End)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), ch.Title, chapters.FormatClock(ch.Start), end})
	}
	sb.WriteString(renderTable(
		[]string{"#", "Title", "Start", "End"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
	))
	sb.WriteString("\n")
	return sb.String()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	return chapters.FormatClock(d.Seconds())
}
