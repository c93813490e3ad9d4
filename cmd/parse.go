package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

var parseHints hintFlags
var parseJSON bool
var parseMaxDepth int
var parseStrict bool
var parseWidth int
var parseNode string

var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Parse a document into a normalized tree",
	Long: `Parse detects the document format (unless --format is given), dispatches it
to a parser and prints the resulting tree as an outline, or as JSON with
--json. Reads stdin when no file is given.`,
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

		opts := parser.Options{MaxDepth: parseMaxDepth, Strict: parseStrict}
		res, err := e.Parse(cmd.Context(), content, parseHints.hints(path), opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if parseNode != "" {
			arena := node.Flatten(res.Tree)
			idx, ok := arena.Lookup(parseNode)
			if !ok {
				return fmt.Errorf("no node with id %q", parseNode)
			}
			if parseJSON {
				return writeJSON(out, arena.Entries[idx].Node)
			}
			FormatNode(out, arena, idx)
			return nil
		}
		if parseJSON {
			return writeJSON(out, res.Tree)
		}
		FormatOutline(out, res.Tree, parseWidth)
		FormatParseSummary(out, res)
		return nil
	},
}

func init() {
	parseHints.register(parseCmd)
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print the tree as JSON")
	parseCmd.Flags().IntVar(&parseMaxDepth, "max-depth", 0, "Stop expanding structured data below this depth (0 = config default)")
	parseCmd.Flags().BoolVar(&parseStrict, "strict", false, "Fail on malformed content instead of returning an error node")
	parseCmd.Flags().IntVar(&parseWidth, "width", 100, "Truncate outline lines to this many columns (0 = no limit)")
	parseCmd.Flags().StringVar(&parseNode, "node", "", "Print only the node with this id")

	rootCmd.AddCommand(parseCmd)
}
