package main

import (
	"github.com/spf13/cobra"
	"github.com/upb/auth0-api/config"
	"github.com/upb/auth0-api/internal/observability"
	"go.uber.org/zap"
)

// newRootCmd returns the Cobra entrypoint for the CLI/server.
func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "auth0-api",
		Short: "API protected by Auth0 access tokens",
		Long: "auth0-api serves a public endpoint, a private endpoint that requires a valid Auth0 " +
			"access token and a scoped endpoint that also requires the read:messages scope.",
		Example: "  auth0-api serve\n" +
			"  auth0-api --env-file ./prod.env config check\n" +
			"  auth0-api keys list",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: nearest .env walking up from the working directory)")

	loader := func(_ *cobra.Command) (*config.Config, *zap.Logger, error) {
		cfg, err := config.New(envFile)
		if err != nil {
			return nil, nil, err
		}
		logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger, nil
	}

	root.AddCommand(newServeCmd(loader))
	root.AddCommand(newConfigCmd(loader))
	root.AddCommand(newKeysCmd(loader))
	return root
}

// configLoader loads configuration and the logger it describes
type configLoader func(cmd *cobra.Command) (*config.Config, *zap.Logger, error)
