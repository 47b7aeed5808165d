// Package cli wires configuration, storage and the HTTP server into the gist command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"GistAPI/internal/config"
	"GistAPI/internal/logger"
	"GistAPI/internal/model"
	"GistAPI/internal/planner"
	"GistAPI/internal/query"
	"GistAPI/internal/resolver"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Debug bool
	// loadConfig is replaced in tests.
	loadConfig func() (*config.Config, error)
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: config.LoadConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gist",
		Short:         "Gist API: field projections over the metadata store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false, "enable debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewReloadCommand(opts))
	return cmd
}

// bootstrap loads configuration, logging and the schema registry shared by
// every command.
func (o *RootOptions) bootstrap() (*config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := logger.Init(".", cfg.Log.Output, cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log init failed: %w", err)
	}
	logger.SetDebug(o.Debug)

	if err := model.InitRegistry(model.SchemasFS(cfg.ModelsDir)); err != nil {
		logger.Error("registry_init_failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	st := model.Registry().Stats()
	logger.Info("models_initialized", map[string]any{
		"schemas":      st.Schemas,
		"presets":      st.Presets,
		"properties":   st.Properties,
		"version":      model.Registry().Version(),
		"heap_alloc":   st.HeapAlloc,
		"memory_limit": st.MemoryLimit,
		"limit_source": st.LimitSource,
	})

	// словари необязательны: без них значения отдаются как есть
	if n, err := model.LoadLocales(model.LocalesFS(cfg.LocalesDir)); err != nil {
		logger.Warn("locales_disabled", map[string]any{"error": err.Error()})
	} else {
		logger.Info("locales_loaded", map[string]any{"count": n})
	}
	return cfg, nil
}

func resolverOptions(cfg *config.Config) resolver.Options {
	return resolver.Options{
		Planner: planner.Options{SamePropertyJunction: cfg.Gist.SamePropertyJunction},
		Prefix:  cfg.APIPrefix,
		BaseURL: cfg.Gist.BaseURL,
		Locale:  cfg.Locale,
	}
}

func queryDefaults(cfg *config.Config) query.Defaults {
	return query.Defaults{PageSize: cfg.Gist.DefaultPageSize, MaxPageSize: cfg.Gist.MaxPageSize}
}
