package main

import (
	"fmt"
	"os"

	"CryptoSignal/internal/di"
	"CryptoSignal/pkg/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cryptosignal",
	Short: "Multi-factor scoring and decision pipeline for crypto perpetuals",
	Long: `cryptosignal scores every configured symbol on a schedule, runs the
direction, timing, risk and quality stages, and publishes the resulting
decisions to Kafka and ClickHouse.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scan loop and the outcome consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		return app.Run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
