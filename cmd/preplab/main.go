package main

import (
	"os"

	"github.com/preplab/preplab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
