package main

import (
	"os"

	"github.com/cfncheck/cfncheck/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCodeForError(err))
	}
}
