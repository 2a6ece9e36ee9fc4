package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/bpm4b/bpm4b/internal/chapters"
	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/http/response"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/ratelimit"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
	"github.com/bpm4b/bpm4b/internal/validation"
)

const okFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.1-test Copyright (c) 2000-2023"
  exit 0
fi
for a in "$@"; do
  case "$a" in
    *.ffmeta) cp "$a" "$(dirname "$0")/captured.ffmeta" ;;
  esac
  last="$a"
done
printf 'M4B-DATA' > "$last"
`

const failingFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.1-test"
  exit 0
fi
echo "input.mp3: Invalid data found when processing input" >&2
exit 1
`

// mp3Bytes is enough of an ID3-tagged file for format detection.
var mp3Bytes = append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), make([]byte, 128)...)

type testServer struct {
	server  *Server
	api     humatest.TestAPI
	dir     string
	scratch *scratch.Manager
	cleanup func()
}

type testOption func(*config.Config)

func withFFmpeg(script string) testOption {
	return func(cfg *config.Config) { cfg.Convert.FFmpegPath = script }
}

func withPolicy(p chapters.Policy) testOption {
	return func(cfg *config.Config) { cfg.Convert.ChapterPolicy = p }
}

func withRequireMP3(on bool) testOption {
	return func(cfg *config.Config) { cfg.Convert.RequireMP3 = on }
}

func setupTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()
	return setupTestServerWithLimiter(t, nil, opts...)
}

func setupTestServerWithLimiter(t *testing.T, limiter *ratelimit.KeyedRateLimiter, opts ...testOption) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{
			CORSAllowedOrigins: []string{"*"},
		},
		Convert: config.ConvertConfig{
			FFmpegPath:    writeScript(t, dir, "ffmpeg", okFFmpeg),
			Codec:         "aac",
			Bitrate:       "64k",
			Timeout:       10 * time.Second,
			ChapterPolicy: chapters.PolicyPassthrough,
			RequireMP3:    true,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	log := logger.Discard()
	mgr, err := scratch.NewManager(filepath.Join(dir, "scratch"), "job", log)
	require.NoError(t, err)

	convert := service.NewConvertService(cfg.Convert, mgr, validation.New(), log)
	server := NewServer(convert, mgr, limiter, cfg, log)

	return &testServer{
		server:  server,
		api:     humatest.Wrap(t, server.API()),
		dir:     dir,
		scratch: mgr,
		cleanup: func() {
			if limiter != nil {
				limiter.Stop()
			}
		},
	}
}

func writeScript(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// multipartBody builds a conversion upload. An empty fileName with nil data
// omits the file part entirely.
func multipartBody(t *testing.T, fileName string, data []byte, chaptersJSON string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if chaptersJSON != "" {
		require.NoError(t, mw.WriteField(formFieldChapters, chaptersJSON))
	}
	if fileName != "" || data != nil {
		fw, err := mw.CreateFormFile(formFieldFile, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return body, mw.FormDataContentType()
}

func (ts *testServer) postConvert(t *testing.T, fileName string, data []byte, chaptersJSON string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fileName, data, chaptersJSON)

	req := httptest.NewRequest(http.MethodPost, "/api/mp3-to-m4b", body)
	req.Header.Set("Content-Type", contentType)
	req.RemoteAddr = "192.0.2.10:51000"

	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, body []byte) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func (ts *testServer) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(ts.scratch.Root())
	require.NoError(t, err)
	require.Empty(t, entries, "scratch workspaces must be removed after each request")
}
