// Command correlate matches events against workflow triggers and starts
// workflow instances once every condition of a trigger is satisfied.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/correlate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
