// Command duelsync mirrors Pistols at Dawn indexer data into a local cache.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/duelsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
