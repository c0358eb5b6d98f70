// Command quarry queries models stored in SQL, document or key/value
// backends. See "quarry --help".
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/quarry/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return cli.ExitSuccess
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		// Already reported by the command.
		return exitErr.Code
	}
	// Usage errors from cobra: unknown flags, wrong argument counts.
	fmt.Fprintln(os.Stderr, "Error:", err)
	return cli.ExitCommandError
}
