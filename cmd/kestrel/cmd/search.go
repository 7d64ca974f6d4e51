package cmd

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/engine"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
	"github.com/kestrel-search/kestrel/internal/search"
)

var (
	flagK          int
	flagPerFile    int
	flagFilterPath string
	flagMode       string
	flagCompact    bool
	flagJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		root, err := resolveRoot()
		if err != nil {
			return err
		}

		eng, err := engine.OpenReader(cmd.Context(), root)
		if err != nil {
			return err
		}
		defer eng.Close()

		var reranker *search.CrossEncoder
		mode := search.Mode(flagMode)
		if mode == search.ModeRerank {
			if eng.Config.RerankModelDir == "" {
				return kerrors.InvalidInput("rerank mode needs rerank_model_dir in .kestrel.yaml", nil)
			}
			reranker, err = search.NewCrossEncoder(eng.Config.RerankModelDir)
			if err != nil {
				return err
			}
			defer func() { _ = reranker.Close() }()
		}

		s := search.NewSearcher(eng, reranker)
		results, err := s.Search(cmd.Context(), query, search.Options{
			K:          flagK,
			PerFile:    flagPerFile,
			FilterPath: flagFilterPath,
			Mode:       mode,
		})
		if err != nil {
			return err
		}

		if flagCompact {
			results = search.Compact(results)
		}
		return printResults(results)
	},
}

func printResults(results []*search.Result) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		say("no results")
		return nil
	}
	for i, r := range results {
		say("%2d. %s:%d-%d  [%s] %s  (%.4f)", i+1, r.Path, r.StartLine, r.EndLine, r.Kind, r.Name, r.Score)
		if r.Signature != "" {
			say("    %s", r.Signature)
		}
	}
	return nil
}

func init() {
	searchCmd.Flags().IntVarP(&flagK, "limit", "k", search.DefaultK, "maximum results")
	searchCmd.Flags().IntVar(&flagPerFile, "per-file", 0, "cap results per file")
	searchCmd.Flags().StringVar(&flagFilterPath, "path", "", "keep only results under this path prefix")
	searchCmd.Flags().StringVar(&flagMode, "mode", string(search.ModeHybrid), "hybrid, vector, or rerank")
	searchCmd.Flags().BoolVar(&flagCompact, "compact", false, "omit chunk content from output")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(searchCmd)
}
