package cmd

import (
	"github.com/spf13/cobra"
)

var parsersJSON bool

var parsersCmd = &cobra.Command{
	Use:   "parsers",
	Short: "List registered parsers",
	Long:  `List every parser available for dispatch, built-in and plugin, in registration order.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := newEngine(cmd)
		if err != nil {
			return err
		}
		descs := e.Registry().Descriptors()
		if parsersJSON {
			return writeJSON(cmd.OutOrStdout(), descs)
		}
		FormatParsers(cmd.OutOrStdout(), descs)
		return nil
	},
}

var pluginsJSON bool

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List registered plugins with their limits",
	Long:  `List the plugins loaded from the configuration with their metadata, kind, limits and usage metrics.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := newEngine(cmd)
		if err != nil {
			return err
		}
		infos := e.Plugins().List()
		if pluginsJSON {
			return writeJSON(cmd.OutOrStdout(), infos)
		}
		FormatPlugins(cmd.OutOrStdout(), infos)
		return nil
	},
}

func init() {
	parsersCmd.Flags().BoolVar(&parsersJSON, "json", false, "Print descriptors as JSON")
	pluginsCmd.Flags().BoolVar(&pluginsJSON, "json", false, "Print plugin info as JSON")

	rootCmd.AddCommand(parsersCmd)
	rootCmd.AddCommand(pluginsCmd)
}
