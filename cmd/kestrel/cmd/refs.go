package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/engine"
	"github.com/kestrel-search/kestrel/internal/search"
)

var flagRefsK int

var refsCmd = &cobra.Command{
	Use:   "refs <symbol>",
	Short: "Find whole-word references to a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return err
		}

		eng, err := engine.OpenReader(cmd.Context(), root)
		if err != nil {
			return err
		}
		defer eng.Close()

		s := search.NewSearcher(eng, nil)
		results, err := s.FindReferences(cmd.Context(), args[0], flagRefsK)
		if err != nil {
			return err
		}
		if flagCompact {
			results = search.Compact(results)
		}
		return printResults(results)
	},
}

func init() {
	refsCmd.Flags().IntVarP(&flagRefsK, "limit", "k", 50, "maximum results")
	refsCmd.Flags().BoolVar(&flagJSON, "json", false, "emit JSON")
	refsCmd.Flags().BoolVar(&flagCompact, "compact", false, "omit chunk content from output")
	rootCmd.AddCommand(refsCmd)
}
