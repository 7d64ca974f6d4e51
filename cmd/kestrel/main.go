// kestrel is a local semantic code search engine: it indexes a source
// tree into a hybrid dense+sparse index on disk and answers natural
// language and symbol queries with no network calls.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrel-search/kestrel/cmd/kestrel/cmd"
	kerrors "github.com/kestrel-search/kestrel/internal/errors"
)

// Exit codes: 0 success, 1 generic failure, 2 invalid arguments,
// 130 interrupted.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	stop()
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, context.Canceled):
		os.Exit(130)
	case kerrors.CategoryOf(err) == kerrors.CategoryInvalidInput:
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
