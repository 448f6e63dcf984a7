package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/disagreement-ai/mediation/backend/internal/config"
	"github.com/disagreement-ai/mediation/backend/internal/logging"
)

var (
	envFile  string
	logLevel string

	// loaded by the root command before any subcommand runs
	cfg *config.Config
	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mediation",
		Short: "Disagreement mediation backend",
		Long:  "Runs the disagreement mediation API: voting, AI mediator turns and realtime room updates.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; the process environment still applies.
			envErr := godotenv.Load(envFile)

			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}

			level := cfg.Log.Level
			if logLevel != "" {
				level = logLevel
			}
			log = logging.NewFromFormat(cfg.Log.Format, level)
			if envErr != nil {
				log.Debug().Err(envErr).Str("file", envFile).Msg("env file not loaded, using process environment")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
