// meshtool inspects OBJ building models and queries the model provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Faultbox/estateview/internal/config"
	"github.com/Faultbox/estateview/internal/logger"
)

var (
	configPath string
	debug      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "meshtool",
	Short: "Inspect OBJ building models and query the building-model provider",
	Long: `meshtool works with the OBJ building models shown by EstateView.
It inspects local OBJ files the way the viewer normalizes them, fetches
models and searches addresses through the configured provider, and manages
the cached API token.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			return logger.Init("debug", "")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")
}

// loadConfig reads the viewer config named by --config.
func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
