package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "doctrace",
	Short: "Document access correlation server",
	Long: `doctrace serves disguised asset, font, theme, configuration and
telemetry endpoints that record who opened a tracked document, from
where, and when. Captured accesses are fingerprinted, correlated into
sessions, and served to the operator dashboard.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".doctrace.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
