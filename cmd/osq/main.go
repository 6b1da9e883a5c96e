// Command osq queries an ontology-typed object store.
package main

import (
	"os"

	"github.com/roach88/osq/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
