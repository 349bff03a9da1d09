package app

import (
	"github.com/spf13/cobra"

	"github.com/NeverMind-orz/identity-kit/internal/config"
	"github.com/NeverMind-orz/identity-kit/internal/daemon"
	"github.com/NeverMind-orz/identity-kit/internal/logger"
)

func init() { //nolint: gochecknoinits
	startCmd.Flags().StringVar(
		&configPath,
		"config",
		"./etc/",
		"Path to the configuration directory holding main.toml",
	)

	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable dev mode")

	rootCmd.AddCommand(startCmd)
}

var (
	configPath string // Path to the configuration directory

	cfg     config.Config
	err     error
	devMode bool

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the identity-kit service",
		PreRun: func(_ *cobra.Command, _ []string) {
			if cfg, err = config.ReadConfig(configPath); err != nil {
				panic(err)
			}

			if devMode {
				cfg.DevMode = true
			}

			if err = logger.Init(cfg.Log); err != nil {
				panic(err)
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			daemon := daemon.New(&cfg)
			if err := daemon.Start(); err != nil {
				return err
			}

			return nil
		},
	}
)
