// Command kernattr infers AMDGPU function attributes for CUE program
// descriptions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/kernattr/internal/cli"
)

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return cli.ExitSuccess
	}

	// Commands report their own failures; anything else is a usage error.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "kernattr: %v\n", err)
		return cli.ExitCommandError
	}
	return exitErr.Code
}

func main() {
	os.Exit(run())
}
