package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/scratch"
)

// ProvideScratchManager provides the scratch workspace manager. Workspaces
// left behind by a previous run are swept before the manager is handed out.
func ProvideScratchManager(i do.Injector) (*scratch.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	mgr, err := scratch.NewManager(cfg.Convert.ScratchPath, "job", log)
	if err != nil {
		return nil, fmt.Errorf("scratch storage: %w", err)
	}

	if _, err := mgr.Sweep(cfg.Convert.ScratchMaxAge); err != nil {
		log.Warn("Initial scratch sweep failed", "error", err)
	}

	log.Info("Scratch storage initialized", "path", mgr.Root())

	return mgr, nil
}
