// Command nutria is the entry point for the nutrition plan engine.
// It provides a CLI interface (via Cobra) for generating plans directly and
// an HTTP server exposing the plan motors as a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/nutria-ai/nutria-go/cmd/nutria/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
