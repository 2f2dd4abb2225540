// Command facestream requests face animation for PCM audio, serves the
// player HTTP API, and runs the mock animation service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/cache"
	"github.com/RenatoCabral2022/facestream/internal/config"
	"github.com/RenatoCabral2022/facestream/internal/transport"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:           "facestream",
	Short:         "Audio to face animation streaming client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("url") {
			cfg.ServerURL = serverURL
		}
		if cmd.Flags().Changed("api-key") {
			cfg.APIKey = apiKey
		}
		if cfg.LogLevel == "debug" {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "animation service URL (http://host:port or https://host:port)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key, or $NAME to read it from the environment")
	rootCmd.AddCommand(serveCmd, requestCmd, mockCmd, healthCmd, paramsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func dial() (*transport.Client, error) {
	return transport.Dial(transport.Config{
		URL:        cfg.ServerURL,
		APIKey:     cfg.APIKey,
		FunctionID: cfg.FunctionID,
	})
}

// openCache returns nil when no cache directory is configured.
func openCache() (*cache.Cache, error) {
	if cfg.CacheDir == "" {
		return nil, nil
	}
	return cache.Open(cache.Options{Dir: cfg.CacheDir, TTL: cfg.CacheTTL}, logger)
}
