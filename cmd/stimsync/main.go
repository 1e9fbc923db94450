// Command stimsync records and verifies synchronized camera and stimulus sessions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stimsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
