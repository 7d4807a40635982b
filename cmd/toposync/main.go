// Command toposync discovers BGP sessions and interface addresses over SNMP
// and reconciles them into the inventory.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toposync/internal/config"
	"toposync/internal/orchestrator"
)

// version is set at build time
var version = "dev"

const (
	exitError     = 1
	exitPreflight = 2
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "toposync",
	Short: "Synchronize network topology into the inventory",
	Long: `toposync polls routers over SNMP, discovers BGP peerings and interface
addresses, and reconciles them into the inventory as links, peers and
address assignments. It runs as an API server or as one-shot commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search TOPOSYNC_CONFIG, ./toposync.yaml, XDG, /etc)")
	rootCmd.SetVersionTemplate("toposync version {{.Version}}\n")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newFinalizeCmd(),
		newSeedCmd(),
		newProbeCmd(),
		newProvidersCmd(),
		newConfigCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, orchestrator.ErrPreflight) {
		return exitPreflight
	}
	return exitError
}

// loadConfig honors --config, otherwise searches the default chain
func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
