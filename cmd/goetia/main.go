// Command goetia inspects the grimoire and exercises the ritual rules.
package main

import (
	"fmt"
	"os"

	"github.com/obsidian-innovations/goetia-sub001/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
