package providers

import (
	"github.com/samber/do/v2"

	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
	"github.com/bpm4b/bpm4b/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideConvertService provides the MP3 to M4B conversion service.
func ProvideConvertService(i do.Injector) (*service.ConvertService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	mgr := do.MustInvoke[*scratch.Manager](i)
	v := do.MustInvoke[*validation.Validator](i)

	return service.NewConvertService(cfg.Convert, mgr, v, log), nil
}
