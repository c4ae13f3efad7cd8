// Command anubis is the build-orchestrator entrypoint: a thin wrapper
// around the cmd package's Cobra command tree, in the same spirit as the
// teacher's own one-line main.go delegating everything to cmd.Execute.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"code.cloudfoundry.org/anubis/cmd"
)

var version = "dev"

func main() {
	if err := cmd.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		os.Exit(1)
	}
}
