package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "wirerelay",
	Short: "Real-time message relay",
	Long: `wirerelay relays text, file and image messages between authenticated clients.

Run 'wirerelay server' to start a relay and 'wirerelay client' to join one.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $WIRERELAY_CONFIG_DEFAULT_PATH/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off")
}

// loadConfig reads configuration and applies the --log-level override.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	bootstrap := log.NewWithWriter(cmd.ErrOrStderr(), "info")
	cfg, path, err := config.Load(bootstrap, configFile)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	bootstrap.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func parsePort(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", arg)
	}
	return port, nil
}
