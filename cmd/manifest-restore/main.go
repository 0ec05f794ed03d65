package main

import (
	"fmt"
	"os"

	"github.com/zmanda/manifest-restore/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "manifest-restore: %v\n", err)
		os.Exit(1)
	}
}
