package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bpm4b/bpm4b/internal/chapters"
	"github.com/bpm4b/bpm4b/internal/config"
	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
	"github.com/bpm4b/bpm4b/internal/id"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/validation"
)

const (
	metadataFileName = "chapters.ffmeta"
	// maxStderr bounds the encoder diagnostics kept for error reports.
	maxStderr = 64 << 10
	// versionTimeout bounds `ffmpeg -version`.
	versionTimeout = 10 * time.Second
)

// ConvertRequest describes one MP3 to M4B conversion.
type ConvertRequest struct {
	SourcePath string             `json:"source_path" validate:"required,safepath"`
	OutputPath string             `json:"output_path" validate:"required,safepath,nefield=SourcePath"`
	Chapters   []chapters.Chapter `json:"chapters"`
	Overwrite  bool               `json:"overwrite"`

	// Workspace is an already-acquired scratch directory for the metadata
	// file. When nil and chapters are present, Convert acquires its own.
	Workspace *scratch.Workspace `json:"-"`
}

// ConvertResult reports a finished conversion.
type ConvertResult struct {
	JobID      string
	OutputPath string
	Chapters   []chapters.Chapter
	Elapsed    time.Duration
}

// EncoderStatus describes the ffmpeg binary the service will run.
type EncoderStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ConvertService runs ffmpeg to remux MP3 audio into an M4B container with
// chapter metadata.
type ConvertService struct {
	cfg        config.ConvertConfig
	scratch    *scratch.Manager
	validator  *validation.Validator
	logger     *logger.Logger
	ffmpegPath string
}

// NewConvertService creates a convert service. A missing ffmpeg is logged,
// not returned: the server still starts and conversions fail with
// ENCODER_UNAVAILABLE until the binary is installed.
func NewConvertService(
	cfg config.ConvertConfig,
	scratchManager *scratch.Manager,
	v *validation.Validator,
	log *logger.Logger,
) *ConvertService {
	if cfg.Codec == "" {
		cfg.Codec = "aac"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "64k"
	}
	if v == nil {
		v = validation.New()
	}
	if log == nil {
		log = logger.Discard()
	}

	ffmpegPath, err := resolveFFmpeg(cfg.FFmpegPath)
	if err != nil {
		log.Warn("ffmpeg not found, conversions will fail until it is installed", "error", err)
	} else {
		log.Debug("using ffmpeg", "path", ffmpegPath)
	}

	return &ConvertService{
		cfg:        cfg,
		scratch:    scratchManager,
		validator:  v,
		logger:     log,
		ffmpegPath: ffmpegPath,
	}
}

// resolveFFmpeg checks a configured path or searches PATH.
func resolveFFmpeg(configured string) (string, error) {
	if configured == "" {
		return exec.LookPath("ffmpeg")
	}
	return exec.LookPath(configured)
}

// FFmpegPath returns the resolved encoder path, or "" when none was found.
func (s *ConvertService) FFmpegPath() string {
	return s.ffmpegPath
}

// Policy returns the chapter policy applied before encoding.
func (s *ConvertService) Policy() chapters.Policy {
	return s.cfg.ChapterPolicy
}

// Convert validates req, writes the chapter metadata into a scratch
// workspace and runs ffmpeg. The subprocess is bound to ctx and to the
// configured timeout. A zero exit status is success.
func (s *ConvertService) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	info, err := os.Stat(req.SourcePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, domainerrors.NotFoundf("source file not found: %s", req.SourcePath)
	case err != nil:
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInternal, "stat source %s", req.SourcePath)
	case info.IsDir():
		return nil, domainerrors.Validationf("source is a directory: %s", req.SourcePath)
	}

	if !req.Overwrite {
		if _, err := os.Stat(req.OutputPath); err == nil {
			return nil, domainerrors.Validationf("output file already exists: %s", req.OutputPath)
		}
	}

	if s.ffmpegPath == "" {
		return nil, domainerrors.EncoderUnavailable("ffmpeg not found; install ffmpeg or set FFMPEG_PATH")
	}

	chs, err := s.cfg.ChapterPolicy.Apply(req.Chapters)
	if err != nil {
		return nil, err
	}

	ws := req.Workspace
	if ws == nil && len(chs) > 0 {
		if s.scratch == nil {
			return nil, domainerrors.Internal("no scratch space configured for chapter metadata")
		}
		ws, err = s.scratch.Acquire()
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "acquire scratch workspace")
		}
		defer s.release(ws)
	}

	jobID := ""
	if ws != nil {
		jobID = ws.ID
	} else if jobID, err = id.Generate("job"); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate job id")
	}
	log := s.logger.WithJob(jobID)

	metadataPath := ""
	if len(chs) > 0 {
		metadataPath = ws.Path(metadataFileName)
		if err := chapters.WriteMetadataFile(metadataPath, chs); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "write chapter metadata")
		}
	}

	args := s.buildArgs(req.SourcePath, metadataPath, req.OutputPath, req.Overwrite)
	log.Debug("executing ffmpeg", "args", args)

	start := time.Now()
	if err := s.run(ctx, args); err != nil {
		log.WithError(err).Warn("conversion failed", "source", req.SourcePath)
		return nil, err
	}
	elapsed := time.Since(start)

	log.Info("conversion finished",
		"source", req.SourcePath,
		"output", req.OutputPath,
		"chapters", len(chs),
		"elapsed", elapsed.Round(time.Millisecond),
	)

	return &ConvertResult{
		JobID:      jobID,
		OutputPath: req.OutputPath,
		Chapters:   chapters.Resolve(chs),
		Elapsed:    elapsed,
	}, nil
}

// buildArgs assembles the ffmpeg command line. The metadata file is a second
// input whose global metadata and chapters are mapped onto the output; only
// audio streams of the source are kept.
func (s *ConvertService) buildArgs(source, metadataPath, output string, overwrite bool) []string {
	overwriteFlag := "-n"
	if overwrite {
		overwriteFlag = "-y"
	}

	args := []string{"-nostdin", "-hide_banner", overwriteFlag, "-i", source}
	if metadataPath != "" {
		args = append(args,
			"-i", metadataPath,
			"-map_metadata", "1",
			"-map_chapters", "1",
		)
	}
	args = append(args,
		"-map", "0:a",
		"-c:a", s.cfg.Codec,
		"-b:a", s.cfg.Bitrate,
		output,
	)
	return args
}

func (s *ConvertService) run(ctx context.Context, args []string) error {
	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	stderr := newTailBuffer(maxStderr)
	cmd := exec.CommandContext(runCtx, s.ffmpegPath, args...) //nolint:gosec // ffmpegPath is resolved at service init
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("conversion canceled: %w", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return domainerrors.Timeoutf("ffmpeg did not finish within %s", s.cfg.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return domainerrors.EncodingFailed(
			fmt.Sprintf("ffmpeg exited with status %d", exitErr.ExitCode()),
			stderr.String(),
		)
	}
	return domainerrors.Wrap(err, domainerrors.CodeEncoderUnavailable, "start ffmpeg")
}

func (s *ConvertService) release(ws *scratch.Workspace) {
	if err := ws.Release(); err != nil {
		s.logger.Warn("failed to release scratch workspace", "job", ws.ID, "error", err)
	}
}

// CheckEncoder runs `ffmpeg -version` and reports the first line.
func (s *ConvertService) CheckEncoder(ctx context.Context) (EncoderStatus, error) {
	if s.ffmpegPath == "" {
		return EncoderStatus{}, domainerrors.EncoderUnavailable("ffmpeg not found; install ffmpeg or set FFMPEG_PATH")
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.ffmpegPath, "-version") //nolint:gosec // ffmpegPath is resolved at service init
	output, err := cmd.Output()
	if err != nil {
		return EncoderStatus{Path: s.ffmpegPath}, domainerrors.Wrap(err, domainerrors.CodeEncoderUnavailable, "ffmpeg -version failed")
	}

	version := ""
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	if scanner.Scan() {
		version = strings.TrimSpace(scanner.Text())
	}

	return EncoderStatus{Available: true, Path: s.ffmpegPath, Version: version}, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	return &tailBuffer{max: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.max {
		b.truncated = b.truncated || len(b.buf) > 0 || len(p) > b.max
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return n, nil
	}
	if overflow := len(b.buf) + len(p) - b.max; overflow > 0 {
		b.buf = b.buf[overflow:]
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	s := strings.TrimSpace(string(b.buf))
	if b.truncated {
		return "[...]\n" + s
	}
	return s
}
