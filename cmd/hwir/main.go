// Command hwir loads circuit designs and runs passes over them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/hwir/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
