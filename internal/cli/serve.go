package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"GistAPI/internal/auth"
	"GistAPI/internal/config"
	"GistAPI/internal/db"
	"GistAPI/internal/handler"
	"GistAPI/internal/logger"
	"GistAPI/internal/model"
	"GistAPI/internal/resolver"
	"GistAPI/internal/router"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.bootstrap()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := db.InitPostgres(cfg.PostgresDSN); err != nil {
		logger.Error("postgres_init_failed", map[string]any{"error": err.Error()})
		return err
	}
	defer db.ClosePostgres()
	logger.Info("postgres_connected", nil)

	if err := db.InitRedis(cfg.RedisAddr); err != nil {
		// без redis перезагрузка схем остаётся локальной
		logger.Warn("redis_unavailable", map[string]any{"error": err.Error()})
	}
	defer db.CloseRedis()

	var validator *auth.JWTValidator
	if cfg.Auth.Enabled {
		v, err := auth.NewJWTValidator(cfg.Auth.JWT)
		if err != nil {
			logger.Error("auth_init_failed", map[string]any{"error": err.Error()})
			return err
		}
		validator = v
	}

	res := resolver.New(resolver.NewExecutor(db.SQL), resolverOptions(cfg))
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(router.Deps{
			Config:    cfg,
			Gist:      handler.NewGistHandler(res, queryDefaults(cfg)),
			Validator: validator,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	if db.RDB != nil {
		g.Go(func() error {
			err := model.WatchReload(ctx, db.RDB, model.SchemasFS(cfg.ModelsDir))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		logger.Info("server_start", map[string]any{"port": cfg.Port, "prefix": cfg.APIPrefix})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", map[string]any{"error": err.Error()})
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("server_stop", nil)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
