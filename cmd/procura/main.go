// Command procura runs the procurement workflow engine: an HTTP and MCP
// surface over the rule store, the execution controller and the deferred
// execution scheduler.
package main

import (
	"fmt"
	"os"
)

const usage = `usage: procura <command> [flags]

commands:
  serve              run the HTTP API and the scheduler
  mcp                run the MCP server on stdio and the scheduler
  migrate            apply database migrations
  rules load <file>  validate and store rules from a YAML or JSON file
  rules check <file> validate a rules file without storing it
  init               write settings.json
  version            print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "mcp":
		err = runMCP(args)
	case "migrate":
		err = runMigrate(args)
	case "rules":
		err = runRules(args)
	case "init":
		err = runInit(args)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
