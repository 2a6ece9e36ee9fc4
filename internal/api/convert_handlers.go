package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bpm4b/bpm4b/internal/chapters"
	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
	"github.com/bpm4b/bpm4b/internal/http/response"
	"github.com/bpm4b/bpm4b/internal/media/probe"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
)

const (
	formFieldFile     = "mp3_file"
	formFieldChapters = "chapters"

	inputFileName  = "input.mp3"
	outputFileName = "output.m4b"

	// maxChaptersBytes bounds the chapters form field.
	maxChaptersBytes = 1 << 20

	m4bContentType  = "audio/x-m4b"
	defaultBaseName = "audiobook"
)

// upload is what handleConvert pulls out of the multipart body.
type upload struct {
	filename    string
	hasFile     bool
	chapterJSON []byte
}

// handleConvert accepts a multipart upload with an MP3 file and an optional
// JSON chapter list, converts it and streams the M4B back as an attachment.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	log := s.logger.Logger

	ws, err := s.scratch.Acquire()
	if err != nil {
		response.HandleError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "acquire scratch workspace"), log)
		return
	}
	defer func() {
		if err := ws.Release(); err != nil {
			s.logger.Warn("failed to release scratch workspace", "job", ws.ID, "error", err)
		}
	}()

	up, err := readUpload(r, ws)
	if err != nil {
		response.HandleError(w, err, log)
		return
	}

	chs, err := parseChapterField(up.chapterJSON)
	if err != nil {
		response.HandleError(w, err, log)
		return
	}

	inputPath := ws.Path(inputFileName)
	if s.cfg.Convert.RequireMP3 {
		if err := probe.RequireMP3(inputPath); err != nil {
			response.HandleError(w, err, log)
			return
		}
	}

	result, err := s.convert.Convert(r.Context(), service.ConvertRequest{
		SourcePath: inputPath,
		OutputPath: ws.Path(outputFileName),
		Chapters:   chs,
		Overwrite:  true,
		Workspace:  ws,
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info("client went away during conversion", "job", ws.ID)
			return
		}
		response.HandleError(w, err, log)
		return
	}

	s.sendAudiobook(w, r, result.OutputPath, downloadName(up.filename))
}

// readUpload streams the multipart body into the workspace. The file part is
// written straight to disk; the chapters field is held in memory.
func readUpload(r *http.Request, ws *scratch.Workspace) (*upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, domainerrors.Validation("No MP3 file provided")
	}

	up := &upload{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domainerrors.Validationf("malformed multipart body: %v", err)
		}

		switch part.FormName() {
		case formFieldFile:
			if up.hasFile {
				_ = part.Close()
				continue
			}
			up.hasFile = true
			up.filename = part.FileName()
			if up.filename == "" {
				_ = part.Close()
				return nil, domainerrors.Validation("No file selected")
			}
			if err := saveUpload(part, ws.Path(inputFileName)); err != nil {
				_ = part.Close()
				return nil, err
			}

		case formFieldChapters:
			data, err := io.ReadAll(io.LimitReader(part, maxChaptersBytes+1))
			if err != nil {
				_ = part.Close()
				return nil, domainerrors.Validationf("read chapters field: %v", err)
			}
			if len(data) > maxChaptersBytes {
				_ = part.Close()
				return nil, domainerrors.Validation("chapters field is too large")
			}
			up.chapterJSON = data
		}
		_ = part.Close()
	}

	if !up.hasFile {
		return nil, domainerrors.Validation("No MP3 file provided")
	}
	return up, nil
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //#nosec G304 -- path is inside a scratch workspace
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "create upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return domainerrors.Validationf("upload interrupted: %v", err)
	}
	if err := dst.Close(); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "close upload file")
	}
	return nil
}

// parseChapterField decodes the chapters form field. A missing or blank
// field means no chapters.
func parseChapterField(data []byte) ([]chapters.Chapter, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	inputs, err := chapters.DecodeInputs(bytes.NewReader(data))
	if err != nil {
		return nil, domainerrors.Validationf("chapters must be a JSON array of {title, start_time}: %v", err)
	}
	return chapters.FromInputs(inputs)
}

func (s *Server) sendAudiobook(w http.ResponseWriter, r *http.Request, path, name string) {
	f, err := os.Open(path) //#nosec G304 -- path is inside a scratch workspace
	if err != nil {
		response.HandleError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "encoder produced no output"), s.logger.Logger)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		response.HandleError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "stat output"), s.logger.Logger)
		return
	}

	w.Header().Set("Content-Type", m4bContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// downloadName turns the uploaded file name into the attachment name:
// directory parts are dropped and the extension becomes .m4b.
func downloadName(uploaded string) string {
	base := filepath.Base(strings.ReplaceAll(uploaded, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' || r == '/' {
			return -1
		}
		return r
	}, base)
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == ".." {
		base = defaultBaseName
	}
	return fmt.Sprintf("%s.m4b", base)
}
