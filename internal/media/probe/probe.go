// Package probe sniffs audio files with audiometa: the upload path uses it
// to reject non-MP3 content, the inspect command to list chapters.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/simonhull/audiometa"

	"github.com/bpm4b/bpm4b/internal/chapters"
	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

// DetectFormat identifies the container of the file at path from its magic
// bytes. Unrecognized content yields FormatUnknown and no error.
func DetectFormat(path string) (audiometa.Format, error) {
	f, err := os.Open(path) //#nosec G304 -- caller-provided media path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return audiometa.FormatUnknown, domainerrors.NotFoundf("source file not found: %s", path)
		}
		return audiometa.FormatUnknown, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return audiometa.FormatUnknown, fmt.Errorf("stat %s: %w", path, err)
	}

	format, err := audiometa.DetectFormat(f, stat.Size(), path)
	if err != nil {
		var unsupported *audiometa.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			return audiometa.FormatUnknown, nil
		}
		return audiometa.FormatUnknown, fmt.Errorf("detect format: %w", err)
	}
	return format, nil
}

// RequireMP3 returns a validation error unless path holds MPEG audio.
func RequireMP3(path string) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	if format != audiometa.FormatMP3 {
		return domainerrors.Validationf("uploaded file is not MP3 audio (detected %s)", format)
	}
	return nil
}

// Info summarizes an audio file for display.
type Info struct {
	Path     string
	Format   string
	Duration time.Duration
	Title    string
	Artist   string
	Album    string
	Chapters []chapters.Chapter
}

// Inspect reads tags, duration and embedded chapters.
func Inspect(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, domainerrors.NotFoundf("file not found: %s", path)
	}

	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeValidation, "read %s", path)
	}
	defer func() { _ = file.Close() }()

	info := &Info{
		Path:     path,
		Format:   file.Format.String(),
		Duration: file.Audio.Duration,
		Title:    file.Tags.Title,
		Artist:   file.Tags.Artist,
		Album:    file.Tags.Album,
		Chapters: make([]chapters.Chapter, 0, len(file.Chapters)),
	}
	for _, ch := range file.Chapters {
		info.Chapters = append(info.Chapters, fromAudiometa(ch))
	}
	return info, nil
}

// ReadChapters returns only the chapters embedded in path.
func ReadChapters(ctx context.Context, path string) ([]chapters.Chapter, error) {
	info, err := Inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	return info.Chapters, nil
}

func fromAudiometa(ch audiometa.Chapter) chapters.Chapter {
	out := chapters.Chapter{Title: ch.Title, Start: ch.StartTime.Seconds()}
	if ch.EndTime > ch.StartTime {
		end := ch.EndTime.Seconds()
		out.End = &end
	}
	return out
}
