package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"agentgate/internal/config"
	"agentgate/internal/router"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string
	logLevel   string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	router.Version = version

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentgate",
		Short:         "agentgate: multi-channel webhook gateway for a single agent",
		Long:          color.CyanString("agentgate") + " receives Telegram, WhatsApp and Discord webhooks, normalizes them and answers through the brain pipeline.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.agentgate/config.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug|info|warn|error)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(askCmd())
	root.AddCommand(configCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	return root
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file. A missing file falls back to defaults
// plus AGENTGATE_* variables so containers can run without one.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config not found, using defaults and environment", "path", path)
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	return cfg, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", color.GreenString("✓"), cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
