package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/engine"
	"github.com/kestrel-search/kestrel/internal/index"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all indexed data for the repository",
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

		if err := index.NewMaintainer(eng).Clear(cmd.Context()); err != nil {
			return err
		}
		say("cleared index at %s", eng.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
