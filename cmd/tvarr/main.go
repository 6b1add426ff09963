// Package main is the entry point for the recorder CLI.
package main

import (
	"errors"
	"os"

	"github.com/nekorec/blivec/cmd/tvarr/cmd"
)

func main() {
	err := cmd.Execute()
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, cmd.ErrInterrupted):
		os.Exit(1)
	default:
		os.Exit(2)
	}
}
