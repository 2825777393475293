// Substrate: reference store and workflow navigation MCP server.
//
// Usage:
//
//	substrate serve               # Start MCP server (stdio transport)
//	substrate refs list           # Inspect stored references
//	substrate workflows validate  # Check workflow definitions
package main

import (
	"fmt"
	"os"

	"github.com/HendryAvila/substrate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
