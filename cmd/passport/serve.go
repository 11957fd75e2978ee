package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/export"
	"github.com/mesh-intelligence/passport/internal/logging"
	"github.com/mesh-intelligence/passport/internal/server"
	"github.com/mesh-intelligence/passport/pkg/types"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr        string
		defaultRole string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the passport HTTP API",
		Long: `Serve runs the HTTP API used by the company, supplier, verifier and admin
portals together with the public passport view, /healthz and /metrics.
Requests choose their role with the X-Passport-Role header. The server stops
gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			role, err := types.ParseRole(defaultRole)
			if err != nil {
				return fmt.Errorf("--default-role %q: %w", defaultRole, err)
			}
			renderer, err := export.NewRenderer(a.cfg.FontPath)
			if err != nil {
				return userError(fmt.Errorf("config: font_path: %w", err))
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Detach(); err != nil {
					a.logger.Error("detach store", zap.Error(err))
				}
			}()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			svc := compliance.NewService(store, a.logger, compliance.WithMetrics(compliance.NewMetrics(reg)))
			acts, err := a.actionService(store)
			if err != nil {
				return err
			}

			if a.cfg.LogMode == logging.ModeProd {
				gin.SetMode(gin.ReleaseMode)
			}
			router := server.NewRouter(server.RouterConfig{
				Service:     svc,
				Actions:     acts,
				Renderer:    renderer,
				Logger:      a.logger,
				Registry:    reg,
				DefaultRole: role,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.logger.Info("starting passport server",
				zap.String("backend", a.cfg.Backend), zap.String("version", version))
			return server.Serve(ctx, addr, router, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: http_addr from config)")
	cmd.Flags().StringVar(&defaultRole, "default-role", string(types.RoleCompany), "role for API requests without a role header")
	return cmd
}
