package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	serverrun "github.com/idlab-discover/pointcast/internal/cmd/server"
	cfgpkg "github.com/idlab-discover/pointcast/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pointcast",
		Short: "Hybrid broadcast/unicast point-cloud streaming server",
		Long:  "pointcast streams volumetric video over a FEC-protected broadcast channel plus per-viewer unicast enhancements, keeping every frame inside its playout deadline.",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the streaming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			httpAddr, _ := cmd.Flags().GetString("http-addr")
			datasets, _ := cmd.Flags().GetString("datasets")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if datasets != "" {
				cfg.DatasetsRoot = datasets
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}

			if err := serverrun.Run(context.Background(), serverrun.Options{
				HTTPAddr: httpAddr,
				Config:   cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serveCmd.Flags().String("config", "", "Path to a JSON or YAML config file")
	serveCmd.Flags().String("http-addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().String("datasets", "", "Datasets root directory (overrides config)")
	serveCmd.Flags().String("log-level", os.Getenv("POINTCAST_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serveCmd.Flags().String("log-format", os.Getenv("POINTCAST_LOG_FORMAT"), "Log format: text|json")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
