package main

import (
	"github.com/spf13/cobra"

	"github.com/jose-valero/queuebot/internal/infra/storage"
)

func newMigrateCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|redo]",
		Short:     "Corre las migraciones embebidas",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status", "version", "redo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := storage.RunMigrations(cmd.Context(), db, command); err != nil {
				return err
			}
			ctx.log.Info("migrations done", "command", command)
			return nil
		},
	}
}
