package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/bpm4b/bpm4b/internal/di"
	"github.com/bpm4b/bpm4b/internal/di/providers"
	"github.com/bpm4b/bpm4b/internal/logger"
)

func newWebCommand(ctx *commandContext) *cobra.Command {
	var host string
	var port int
	var debug bool

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Start the web interface and HTTP API",
		Example: `  bpm4b web
  bpm4b web --port 8080
  bpm4b web --host 127.0.0.1 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ctx.options()
			opts.Overrides.Host = host
			if cmd.Flags().Changed("port") {
				opts.Overrides.Port = strconv.Itoa(port)
			}
			if debug {
				opts.Overrides.LogLevel = "debug"
			}

			injector := di.NewContainer(opts)
			if err := di.Bootstrap(injector); err != nil {
				_ = injector.Shutdown()
				return fmt.Errorf("start server: %w", err)
			}

			log := do.MustInvoke[*logger.Logger](injector)
			srv := do.MustInvoke[*providers.HTTPServerHandle](injector)

			fmt.Fprintf(cmd.OutOrStdout(), "bpm4b %s listening on http://%s\n", version, displayAddr(srv.Addr()))
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop the server")

			var serveErr error
			select {
			case <-cmd.Context().Done():
				log.Info("Shutting down server gracefully...")
			case err, ok := <-srv.Errors():
				if ok {
					serveErr = err
				}
			}

			if err := injector.Shutdown(); err != nil {
				log.Error("Shutdown error", "error", err)
			}

			if serveErr != nil {
				return fmt.Errorf("server stopped: %w", serveErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Server stopped. Goodbye!")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind to (default 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 5000, "Port to bind to")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

// displayAddr swaps the wildcard host for localhost so the URL is clickable.
func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
