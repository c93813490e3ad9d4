package cmd

import (
	"github.com/spf13/cobra"
)

var detectHints hintFlags
var detectJSON bool

var detectCmd = &cobra.Command{
	Use:   "detect [file|-]",
	Short: "Detect the format of a document",
	Long: `Detect classifies a document and reports the format, a confidence in [0,1],
what decided it and up to two runner-up formats. Reads stdin when no file
is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := newEngine(cmd)
		if err != nil {
			return err
		}
		content, path, err := readInput(cmd, args, cfg.Parsing.MaxContentBytes)
		if err != nil {
			return err
		}

		res, err := e.Detect(content, detectHints.hints(path))
		if err != nil {
			return err
		}
		if detectJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		FormatDetection(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	detectHints.register(detectCmd)
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print the result as JSON")

	rootCmd.AddCommand(detectCmd)
}
