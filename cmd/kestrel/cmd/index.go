package cmd

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/engine"
	"github.com/kestrel-search/kestrel/internal/index"
)

var flagFull bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or update the index for the repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return err
		}

		eng, err := engine.OpenWriter(cmd.Context(), root)
		if err != nil {
			return err
		}
		defer eng.Close()

		m := index.NewMaintainer(eng)
		if !flagQuiet && isatty.IsTerminal(os.Stdout.Fd()) {
			m.Progress = func(path string, done, total int) {
				say("  [%d/%d] %s", done, total, path)
			}
		} else if flagQuiet {
			m.Progress = func(path string, done, total int) {
				slog.Info("indexed file",
					slog.String("path", path),
					slog.Int("done", done),
					slog.Int("total", total))
			}
		}

		var summary *index.Summary
		if flagFull {
			summary, err = m.Full(cmd.Context())
		} else {
			summary, err = m.Incremental(cmd.Context())
		}
		if err != nil {
			return err
		}

		if summary.UpToDate {
			say("index up to date (%d files)", summary.Unchanged)
			return nil
		}
		say("indexed %s: %d unchanged, %d changed, %d new, %d deleted, %d chunks",
			root, summary.Unchanged, summary.Changed, summary.New,
			summary.Deleted, summary.ChunksProcessed)
		if summary.FilesSkipped > 0 {
			say("%d files skipped with errors (see log)", summary.FilesSkipped)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&flagFull, "full", false, "reprocess every file, not just changes")
	rootCmd.AddCommand(indexCmd)
}
