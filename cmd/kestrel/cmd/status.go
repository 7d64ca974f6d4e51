package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/engine"
	"github.com/kestrel-search/kestrel/internal/index"
)

var flagVerify bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index location, size, and health",
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

		stats, err := eng.Stats()
		if err != nil {
			return err
		}

		say("index:   %s", eng.Dir)
		say("model:   %s (%d dims)", stats.ModelID, stats.VectorDim)
		say("files:   %d", stats.FileCount)
		say("chunks:  %d", stats.ChunkCount)
		say("size:    %s", humanize.Bytes(uint64(stats.SizeBytes)))
		say("created: %s", eng.Manifest.CreatedAt.Format("2006-01-02 15:04:05 MST"))

		if flagVerify {
			report, err := index.NewMaintainer(eng).Verify(cmd.Context())
			if err != nil {
				return err
			}
			if report.Clean() {
				say("consistency: ok")
			} else {
				say("consistency: %d vector-only, %d fts-only, %d untracked, %d missing",
					len(report.VectorOnly), len(report.FTSOnly),
					len(report.Untracked), len(report.MissingChunks))
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagVerify, "verify", false, "cross-check store consistency")
	rootCmd.AddCommand(statusCmd)
}
