package main

import (
	"fmt"
	"os"
)

const usageText = `overseer watches OpenCode sessions and nudges them when they stall.

Usage:
  overseer <command> [flags]

Commands:
  daemon   run the watchdog daemon
  config   print configuration (effective or defaults)
  status   show the watchdog state
  nudges   list journaled nudges
  watch    follow the watchdog live
  memory   read and write the Chroma-backed memory store
  version  print the build version
  help     show help

Flags:
  -h, --help   show help

Daemon flags:
  --background    run in background (logs to file)

Examples:
  overseer status --format yaml
  overseer nudges --session ses_123 --limit 20
  overseer config --default --format toml
  overseer memory search repo_memory "build flags" 3
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
