package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "honeyd",
	Short: "Honey node JSON-RPC daemon",
	Long: `honeyd runs the JSON-RPC control plane of a Honey node.

It serves blockchain queries, wallet operations and node control over
HTTP/1.1 (optionally TLS) with basic authentication.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"path to the configuration file (default "+defaultConfigHint()+")")

	rootCmd.AddCommand(startCmd, initCmd, configCmd, versionCmd)
}

func defaultConfigHint() string {
	return "$XDG_CONFIG_HOME/honeyd/config.yaml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
