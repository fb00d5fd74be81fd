package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jose-valero/queuebot/internal/infra/config"
)

// cliContext carga .env y la config una sola vez para todos los subcomandos.
type cliContext struct {
	envFile string
	cfg     *config.Config
	log     *slog.Logger
}

func (c *cliContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return config.Config{}, err
		}
	} else {
		_ = godotenv.Load()
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = &cfg
	c.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(c.log)
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}

	rootCmd := &cobra.Command{
		Use:           "queuebot",
		Short:         "Colas de espera para canales de voz y texto en Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd == cmd.Root() {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env", "", "Archivo .env a cargar (por defecto ./.env si existe)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	return rootCmd
}
