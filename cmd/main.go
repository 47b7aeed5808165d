package main

import (
	"fmt"
	"os"

	"GistAPI/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gist: %v\n", err)
		os.Exit(1)
	}
}
