// Package main implements the command line tool for an emulated NOR flash
// variable store
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/retroenv/flashpatch/internal/cli"
	"github.com/retroenv/retrogolib/app"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	cmd := cli.New(cli.Version{
		Version: version,
		Commit:  commit,
		Date:    date,
	})

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	// Handle context cancellation (Ctrl+C) gracefully
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Operation cancelled")
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var usageErr *cli.UsageError
	if errors.As(err, &usageErr) {
		usageErr.ShowUsage()
	}
	os.Exit(1)
}
