package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpm4b/bpm4b/internal/chapters"
	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
)

func TestConvert_Success(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "My Book.mp3", mp3Bytes,
		`[{"title":"Intro","start_time":0},{"title":"Chapter 1","start_time":"6:30"},{"title":"Chapter 2","start_time":"900.5"}]`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "audio/x-m4b", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="My Book.m4b"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "M4B-DATA", rec.Body.String())

	meta, err := os.ReadFile(filepath.Join(ts.dir, "captured.ffmeta"))
	require.NoError(t, err)
	assert.Equal(t, ";FFMETADATA1\n"+
		"[CHAPTER]\nTIMEBASE=1/1000\nSTART=0\nEND=390000\ntitle=Intro\n\n"+
		"[CHAPTER]\nTIMEBASE=1/1000\nSTART=390000\nEND=900500\ntitle=Chapter 1\n\n"+
		"[CHAPTER]\nTIMEBASE=1/1000\nSTART=900500\ntitle=Chapter 2\n\n", string(meta))

	ts.assertScratchEmpty(t)
}

func TestConvert_NoChaptersSkipsMetadata(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoFileExists(t, filepath.Join(ts.dir, "captured.ffmeta"))
	ts.assertScratchEmpty(t)
}

func TestConvert_EmptyChapterArray(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes, "[]")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoFileExists(t, filepath.Join(ts.dir, "captured.ffmeta"))
}

func TestConvert_MissingFile(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "", nil, `[{"title":"Intro","start_time":0}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.False(t, env.Success)
	assert.Equal(t, "No MP3 file provided", env.Error)
	assert.Equal(t, string(domainerrors.CodeValidation), env.Code)
	ts.assertScratchEmpty(t)
}

func TestConvert_EmptyFileName(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "", []byte{}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file selected", decodeEnvelope(t, rec.Body.Bytes()).Error)
}

func TestConvert_NotMultipart(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/mp3-to-m4b", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No MP3 file provided", decodeEnvelope(t, rec.Body.Bytes()).Error)
}

func TestConvert_InvalidChapterJSON(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes, `{"title":"not an array"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeValidation), env.Code)
	assert.Contains(t, env.Error, "JSON array")
	ts.assertScratchEmpty(t)
}

func TestConvert_TrailingChapterData(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes,
		`[{"title":"Intro","start_time":0}] ,{"title":"Lost","start_time":"1:00"}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeValidation), env.Code)
	assert.Contains(t, env.Error, "unexpected data after chapter array")
	assert.NoFileExists(t, filepath.Join(ts.dir, "captured.ffmeta"), "encoder must not run")
	ts.assertScratchEmpty(t)
}

func TestConvert_InvalidTimeFormat(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes,
		`[{"title":"Intro","start_time":0},{"title":"Broken","start_time":"1:2:3"}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeInvalidTimeFormat), env.Code)
	assert.Contains(t, env.Error, `chapter 2 ("Broken")`)
	assert.NoFileExists(t, filepath.Join(ts.dir, "captured.ffmeta"), "encoder must not run")
}

func TestConvert_RejectsNonMP3(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "notes.mp3", []byte(strings.Repeat("plain text, not audio\n", 8)), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.Contains(t, env.Error, "not MP3")
	ts.assertScratchEmpty(t)
}

func TestConvert_ContentCheckDisabled(t *testing.T) {
	ts := setupTestServer(t, withRequireMP3(false))
	defer ts.cleanup()

	rec := ts.postConvert(t, "notes.txt", []byte("plain text"), "")

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=notes.m4b", rec.Header().Get("Content-Disposition"))
}

func TestConvert_EncoderFailure(t *testing.T) {
	failing := writeScript(t, t.TempDir(), "ffmpeg", failingFFmpeg)
	ts := setupTestServer(t, withFFmpeg(failing))
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes, `[{"title":"Intro","start_time":0}]`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.Equal(t, string(domainerrors.CodeEncodingFailed), env.Code)
	assert.Contains(t, env.Error, "status 1")

	details, ok := env.Details.(map[string]any)
	require.True(t, ok, "details: %#v", env.Details)
	assert.Contains(t, details["stderr"], "Invalid data found")
	ts.assertScratchEmpty(t)
}

func TestConvert_EncoderUnavailable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-ffmpeg")
	ts := setupTestServer(t, withFFmpeg(missing))
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes, "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(domainerrors.CodeEncoderUnavailable), decodeEnvelope(t, rec.Body.Bytes()).Code)
}

func TestConvert_RejectPolicy(t *testing.T) {
	ts := setupTestServer(t, withPolicy(chapters.PolicyReject))
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes,
		`[{"title":"Late","start_time":"10:00"},{"title":"Early","start_time":"1:00"}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec.Body.Bytes()).Error, `chapter 2 ("Early")`)
}

func TestConvert_EscapesReservedTitleCharacters(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	rec := ts.postConvert(t, "book.mp3", mp3Bytes, `[{"title":"Part 1 = Start; #1","start_time":0}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	meta, err := os.ReadFile(filepath.Join(ts.dir, "captured.ffmeta"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `title=Part 1 \= Start\; \#1`+"\n")
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"book.mp3", "book.m4b"},
		{"My Book.MP3", "My Book.m4b"},
		{"../../etc/passwd", "passwd.m4b"},
		{`C:\Users\me\story.mp3`, "story.m4b"},
		{"noext", "noext.m4b"},
		{"quote\".mp3", "quote.m4b"},
		{"", "audiobook.m4b"},
		{".mp3", "audiobook.m4b"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, downloadName(tt.in))
		})
	}
}
