package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MonilMehta/fyp/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize doctrace configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the tracking server and generates a .doctrace.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
