package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/logging"
)

var (
	flagRoot  string
	flagQuiet bool
	flagDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Local semantic code search",
	Long: `kestrel indexes a source tree into a hybrid dense+sparse index and
answers natural-language and symbol queries entirely on this machine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if flagDebug {
			level = "debug"
		}
		cleanup, err := logging.SetupDefault(logging.Config{
			Level:         level,
			FilePath:      logFilePath(),
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: flagDebug,
		})
		if err != nil {
			return err
		}
		cobra.OnFinalize(cleanup)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagRoot, "root", "C", ".", "repository root")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress user-facing output, log structured events only")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose logging to stderr")
}

// Execute runs the CLI with the interrupt-aware context.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// resolveRoot returns the absolute repository root.
func resolveRoot() (string, error) {
	abs, err := filepath.Abs(flagRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", flagRoot, err)
	}
	return abs, nil
}

// logFilePath places the structured log outside the indexed tree.
func logFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kestrel", "logs", "kestrel.log")
}

// say prints user-facing output unless quiet mode is on.
func say(format string, args ...any) {
	if !flagQuiet {
		fmt.Printf(format+"\n", args...)
	}
}
