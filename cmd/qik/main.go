// Command qik runs a directed graph of cached commands.
package main

import (
	"context"
	"os"

	"qik/internal/cli"

	_ "qik/internal/plugin/cache"
	_ "qik/internal/plugin/dep"
	_ "qik/internal/plugin/venv"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cli.NewRootCommand()
	root.SetContext(context.Background())
	err := root.Execute()
	return cli.ExitCode(err)
}
