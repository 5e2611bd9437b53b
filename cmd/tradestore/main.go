package main

import (
	"fmt"
	"os"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"upgrade":   runUpgrade,
	"downgrade": runDowngrade,
	"current":   runCurrent,
	"history":   runHistory,
	"sql":       runSQL,
	"check":     runCheck,
	"config":    runConfig,
}

func usage() {
	fmt.Fprintf(os.Stderr, `tradestore - trading schema migrations (version %s)

Usage:
  tradestore <command> [options]

Commands:
  upgrade    Apply versions up to a target (default head)
  downgrade  Revert versions down to a target (base, a version ID, or -N)
  current    Print the version the database is at
  history    Print every upgrade and downgrade step recorded
  sql        Print the DDL an upgrade or downgrade would run
  check      Check connectivity, schema version and required tables
  config     Manage versioned config documents (load, activate, show)

The database is read from DATABASE_URL; a .env file in the working
directory is loaded first when present.

Run 'tradestore <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd) //nolint:gosec // G705: CLI error output
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:gosec // G705: CLI error output
		os.Exit(1)
	}
}
