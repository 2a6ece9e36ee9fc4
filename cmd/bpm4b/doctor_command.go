package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
	"github.com/bpm4b/bpm4b/internal/validation"
)

const (
	statusOK   = "ok"
	statusFail = "FAIL"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg and the scratch directory are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cmd, cfg)

			var rows [][]string
			failed := false

			mgr, scratchErr := scratch.NewManager(cfg.Convert.ScratchPath, "job", log)
			if scratchErr == nil {
				var ws *scratch.Workspace
				if ws, scratchErr = mgr.Acquire(); scratchErr == nil {
					scratchErr = ws.Release()
				}
			}
			if scratchErr != nil {
				failed = true
				rows = append(rows, []string{"scratch", statusFail, scratchErr.Error()})
			} else {
				rows = append(rows, []string{"scratch", statusOK, cfg.Convert.ScratchPath})
			}

			svc := service.NewConvertService(cfg.Convert, mgr, validation.New(), log)
			encoder, encErr := svc.CheckEncoder(cmd.Context())
			if encErr != nil {
				failed = true
				rows = append(rows, []string{"ffmpeg", statusFail, encErr.Error()})
			} else {
				rows = append(rows, []string{"ffmpeg", statusOK, encoderSummary(encoder)})
			}

			rows = append(rows,
				[]string{"codec", statusOK, fmt.Sprintf("%s @ %s", cfg.Convert.Codec, cfg.Convert.Bitrate)},
				[]string{"chapter policy", statusOK, string(cfg.Convert.ChapterPolicy)},
			)

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if failed {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

func encoderSummary(status service.EncoderStatus) string {
	if status.Version == "" {
		return status.Path
	}
	return fmt.Sprintf("%s (%s)", status.Version, status.Path)
}
