// Package main provides the entry point for the memcore CLI.
package main

import (
	"os"

	"github.com/contextvault/memcore/cmd/memcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
