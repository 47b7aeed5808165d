package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"GistAPI/internal/db"
	"GistAPI/internal/model"
)

// NewReloadCommand validates the schema definitions and asks every running
// server to reload them.
func NewReloadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Publish a schema registry reload to running servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.bootstrap()
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return errors.New("REDIS_ADDR is not configured")
			}
			if err := db.InitRedis(cfg.RedisAddr); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer db.CloseRedis()

			if err := model.PublishReload(cmd.Context(), db.RDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reload published, version %s\n", model.Registry().Version())
			return nil
		},
	}
}
