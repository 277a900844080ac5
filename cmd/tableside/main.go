package main

import (
	"os"

	"github.com/Additional-Code/tableside/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
