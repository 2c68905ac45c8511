// Command polystore manages a polystore entity database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/polystore/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err == nil {
		return
	}

	// Commands report their own failures; anything else is a flag or
	// argument error from cobra.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.GetExitCode(err))
}
