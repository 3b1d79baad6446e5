// Package main provides the entry point for the design-indexer CLI.
package main

import (
	"os"

	"github.com/satnambhatt/ai-engine/cmd/design-indexer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
