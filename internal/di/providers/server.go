package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/bpm4b/bpm4b/internal/api"
	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/ratelimit"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
)

// rateLimitTTL is how long an idle client's bucket is kept.
const rateLimitTTL = 10 * time.Minute

// RateLimiterHandle wraps the keyed rate limiter with Shutdownable. The
// embedded limiter is nil when rate limiting is disabled.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	if h.KeyedRateLimiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideRateLimiter provides the per-IP limiter for the conversion endpoint.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Server.RateLimitPerMinute <= 0 {
		log.Info("Conversion rate limiting disabled by configuration")
		return &RateLimiterHandle{}, nil
	}

	limiter := ratelimit.New(cfg.Server.RateLimitPerMinute, time.Minute, cfg.Server.RateLimitBurst, rateLimitTTL)
	return &RateLimiterHandle{KeyedRateLimiter: limiter}, nil
}

// ProvideAPIServer provides the HTTP handler with all routes configured.
func ProvideAPIServer(i do.Injector) (*api.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	convert := do.MustInvoke[*service.ConvertService](i)
	mgr := do.MustInvoke[*scratch.Manager](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)

	return api.NewServer(convert, mgr, limiter.KeyedRateLimiter, cfg, log), nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	listener net.Listener
	errs     chan error
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
func (h *HTTPServerHandle) Addr() string {
	return h.listener.Addr().String()
}

// Errors reports a fatal serve error. It is closed when the server stops.
func (h *HTTPServerHandle) Errors() <-chan error {
	return h.errs
}

// ProvideHTTPServer binds the listen address and starts serving in the
// background. Bind failures are returned so startup fails fast.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	handler := do.MustInvoke[*api.Server](i)

	srv := api.NewHTTPServer(cfg.Server, handler)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	h := &HTTPServerHandle{Server: srv, listener: ln, errs: make(chan error, 1)}

	go func() {
		defer close(h.errs)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			h.errs <- err
		}
	}()

	log.Info("Server running", "addr", h.Addr())

	return h, nil
}
