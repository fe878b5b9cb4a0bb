package main

import (
	"fmt"

	"github.com/marmos91/honeyd/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented configuration file with default values.

The file goes to --config when given, otherwise to the default location.
An existing file is kept unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			var err error
			if path, err = config.InitConfig(initForce); err != nil {
				return err
			}
		} else if err := config.InitConfigToPath(path, initForce); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing configuration file")
}
