package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "scratch"), "job", nil)
	require.NoError(t, err)
	return m
}

func age(t *testing.T, dir string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(dir, old, old))
}

func TestAcquire_CreatesUniqueWorkspaces(t *testing.T) {
	m := newTestManager(t)

	a, err := m.Acquire()
	require.NoError(t, err)
	defer func() { _ = a.Release() }()
	b, err := m.Acquire()
	require.NoError(t, err)
	defer func() { _ = b.Release() }()

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.True(t, strings.HasPrefix(a.ID, "job-"))
	assert.Equal(t, m.Root(), filepath.Dir(a.Dir()))
	assert.DirExists(t, a.Dir())
	assert.FileExists(t, filepath.Join(a.Dir(), lockName))
}

func TestWorkspace_PathStaysInside(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Acquire()
	require.NoError(t, err)
	defer func() { _ = ws.Release() }()

	tests := map[string]string{
		"input.mp3":          "input.mp3",
		"../../etc/passwd":   "passwd",
		"/abs/chapters.meta": "chapters.meta",
		"":                   "file",
		".lock":              "file",
	}
	for name, want := range tests {
		assert.Equal(t, filepath.Join(ws.Dir(), want), ws.Path(name), "name %q", name)
	}
}

func TestWorkspace_ReleaseRemovesEverything(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Acquire()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ws.Path("input.mp3"), []byte("ID3"), 0o600))
	require.NoError(t, ws.Release())
	assert.NoDirExists(t, ws.Dir())

	// Second release is a no-op.
	assert.NoError(t, ws.Release())
}

func TestSweep_RemovesStaleUnlockedWorkspaces(t *testing.T) {
	m := newTestManager(t)

	stale := filepath.Join(m.Root(), "job-crashed")
	require.NoError(t, os.Mkdir(stale, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "input.mp3"), []byte("x"), 0o600))
	age(t, stale, 2*time.Hour)

	fresh := filepath.Join(m.Root(), "job-fresh")
	require.NoError(t, os.Mkdir(fresh, 0o700))

	unrelated := filepath.Join(m.Root(), "keep-me")
	require.NoError(t, os.Mkdir(unrelated, 0o700))
	age(t, unrelated, 2*time.Hour)

	removed, err := m.Sweep(time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, unrelated)
}

func TestSweep_SkipsLockedWorkspace(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Acquire()
	require.NoError(t, err)
	defer func() { _ = ws.Release() }()
	age(t, ws.Dir(), 2*time.Hour)

	removed, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.DirExists(t, ws.Dir())
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager("", "", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(os.TempDir(), "bpm4b"), m.Root())
	assert.Equal(t, "job", m.prefix)
}
