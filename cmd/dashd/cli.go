package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/homedash/dashd/internal/jobengine"
)

type serverConfig struct {
	host       string
	port       uint16
	configPath string

	authToken string
	certPath  string
	keyPath   string

	gracePeriod time.Duration

	debug bool
}

func rootCmd() *cobra.Command {
	config := &serverConfig{}

	c := &cobra.Command{
		Use:     "dashd",
		Short:   "Dashboard daemon for running and watching home-server automations",
		Example: "  dashd --config config/automations.yaml --port 8080",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(config)
		},
	}

	c.Flags().StringVar(&config.host, "host", "0.0.0.0", "Host address to bind")
	c.Flags().Uint16Var(&config.port, "port", 8080, "HTTP server port")

	c.Flags().StringVar(
		&config.configPath,
		"config",
		"config/automations.yaml",
		"Path to the automation catalogue",
	)

	c.Flags().StringVar(
		&config.authToken,
		"auth-token",
		"",
		"Bearer token required on start/cancel endpoints (empty disables auth)",
	)

	c.Flags().
		StringVar(&config.certPath, "cert", "", "Path to TLS certificate (optional)")

	c.Flags().
		StringVar(&config.keyPath, "key", "", "Path to TLS private key (optional)")

	c.Flags().DurationVar(
		&config.gracePeriod,
		"grace-period",
		jobengine.DefaultGracePeriod,
		"How long a cancel waits after SIGTERM before SIGKILL",
	)

	c.Flags().BoolVar(&config.debug, "debug", false, "Enable debug logs")

	return c
}
