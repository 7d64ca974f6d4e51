package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/engine"
	"github.com/kestrel-search/kestrel/internal/index"
	"github.com/kestrel-search/kestrel/internal/walk"
	"github.com/kestrel-search/kestrel/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the repository and keep the index up to date",
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

		// Catch up before going live so the first change event isn't
		// racing a stale index.
		if _, err := m.Incremental(cmd.Context()); err != nil {
			return err
		}
		say("watching %s", root)

		walker := walk.New(root, eng.Config.Exclude)
		w := watch.New(root, walker, watch.RefresherFunc(func(ctx context.Context) error {
			_, err := m.Incremental(ctx)
			return err
		}), eng.Config.DebounceWindow)

		return w.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
