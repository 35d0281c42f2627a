package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/strom/internal/cmd/client"
	serverrun "github.com/rzbill/strom/internal/cmd/server"
	cfgpkg "github.com/rzbill/strom/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "strom",
		Short: "Strom event-stream CLI",
		Long:  "Strom is a persistent, append-only, typed event-stream engine. This CLI manages the server and basic stream operations.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the strom server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)

			if v, _ := cmd.Flags().GetString("http"); v != "" {
				cfg.HTTPAddr = v
			}
			if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
				cfg.DataDir = v
			}
			if v, _ := cmd.Flags().GetString("persistence"); v != "" {
				cfg.Persistence = v
			}
			if v, _ := cmd.Flags().GetString("fsync"); v != "" {
				cfg.Fsync = v
			}
			if v, _ := cmd.Flags().GetString("log-level"); v != "" {
				cfg.LogLevel = v
			}
			if v, _ := cmd.Flags().GetString("log-format"); v != "" {
				cfg.LogFormat = v
			}
			if streams, _ := cmd.Flags().GetStringSlice("stream"); len(streams) > 0 {
				for _, name := range streams {
					cfg.Streams = append(cfg.Streams, cfgpkg.StreamConfig{Name: name})
				}
			}

			if err := serverrun.Run(context.Background(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("STROM_CONFIG"), "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (default: OS-specific application data directory)")
	serverStartCmd.Flags().String("persistence", "", "Persistence backend: memory|file|pebble (default pebble)")
	serverStartCmd.Flags().String("fsync", "", "Fsync mode for pebble persistence: always|interval|never")
	serverStartCmd.Flags().String("log-level", os.Getenv("STROM_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("STROM_LOG_FORMAT"), "Log format: text|json")
	serverStartCmd.Flags().StringSlice("stream", nil, "Stream to open at start (repeatable)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewStreamCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("STROM_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
