package main

import (
	"fmt"
	"os"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/nodeflow/
var version = "dev"

const usage = `nodeflow: dataflow scene engine

Usage:
  nodeflow serve   [flags]   run the HTTP API (default)
  nodeflow mcp     [flags]   run the MCP tool server on stdio
  nodeflow render  [flags]   render a scene file or stored scene
  nodeflow install [flags]   write settings.json and fetch helper tools
  nodeflow version           print the version
`

func main() {
	cmd := "serve"
	var args []string
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "mcp":
		runMCP(args)
	case "render":
		runRender(args)
	case "install":
		runInstall(args)
	case "version", "-v", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}
