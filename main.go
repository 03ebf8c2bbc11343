// Package main is the entry point of the hayabusa scanner.
package main

import (
	"fmt"
	"os"

	"github.com/Yamato-Security/hayabusa-sub001/bootstrap"
	"github.com/Yamato-Security/hayabusa-sub001/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", bootstrap.ClassifyStartupError(err))
		os.Exit(1)
	}
}
