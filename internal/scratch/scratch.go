// Package scratch hands out private, locked working directories for
// conversion jobs and removes them afterwards.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/bpm4b/bpm4b/internal/id"
	"github.com/bpm4b/bpm4b/internal/logger"
)

const lockName = ".lock"

// Manager creates job workspaces under a root directory.
type Manager struct {
	root   string
	prefix string
	logger *logger.Logger
}

// NewManager creates the root directory if needed. An empty root selects
// the system temp directory.
func NewManager(root, prefix string, log *logger.Logger) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "bpm4b")
	}
	if prefix == "" {
		prefix = "job"
	}
	if log == nil {
		log = logger.Discard()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &Manager{root: root, prefix: prefix, logger: log}, nil
}

// Root returns the directory workspaces are created in.
func (m *Manager) Root() string {
	return m.root
}

// Workspace is a directory owned by a single job for its lifetime.
type Workspace struct {
	ID   string
	dir  string
	lock *flock.Flock

	once sync.Once
	err  error
}

// Acquire creates a uniquely named workspace and locks it so Sweep leaves it
// alone while the job runs.
func (m *Manager) Acquire() (*Workspace, error) {
	jobID, err := id.Generate(m.prefix)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.root, jobID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		_ = os.RemoveAll(dir)
		if err == nil {
			err = fmt.Errorf("workspace %s is locked", jobID)
		}
		return nil, fmt.Errorf("lock workspace: %w", err)
	}

	m.logger.Debug("scratch workspace acquired", "job", jobID, "dir", dir)
	return &Workspace{ID: jobID, dir: dir, lock: lock}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory. Only the base name of name
// is used so callers cannot escape the workspace.
func (w *Workspace) Path(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == lockName {
		base = "file"
	}
	return filepath.Join(w.dir, base)
}

// Release unlocks and deletes the workspace. It is safe to call more than once.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		unlockErr := w.lock.Unlock()
		removeErr := os.RemoveAll(w.dir)
		switch {
		case removeErr != nil:
			w.err = fmt.Errorf("remove workspace: %w", removeErr)
		case unlockErr != nil:
			w.err = fmt.Errorf("unlock workspace: %w", unlockErr)
		}
	})
	return w.err
}

// Sweep deletes workspaces older than maxAge whose lock is free, which is
// what a crashed job leaves behind. It returns the number removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read scratch root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), m.prefix+"-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(m.root, entry.Name())
		lock := flock.New(filepath.Join(dir, lockName))
		ok, err := lock.TryLock()
		if err != nil || !ok {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove stale workspace", "dir", dir, "error", err)
		} else {
			removed++
		}
		_ = lock.Unlock()
	}

	if removed > 0 {
		m.logger.Info("removed stale scratch workspaces", "count", removed)
	}
	return removed, nil
}
