package main

import (
	"io"
	"os"

	"overseer/internal/config"
)

type commandRunner interface {
	Run(args []string) error
}

type commandWiring struct {
	stdout     io.Writer
	stderr     io.Writer
	newClient  clientFactory
	newMemory  memoryFactory
	loadConfig func() (config.CoreConfig, error)
	runDaemon  func(background bool) error
	version    string
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:     stdout,
		stderr:     stderr,
		newClient:  newOverseerClient,
		newMemory:  newMemoryClient,
		loadConfig: config.LoadCoreConfig,
		runDaemon:  runDaemonProcess,
		version:    buildVersion(),
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"daemon":  NewDaemonCommand(wiring.stderr, wiring.runDaemon),
		"config":  NewConfigCommand(wiring.stdout, wiring.stderr, wiring.loadConfig),
		"status":  NewStatusCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"nudges":  NewNudgesCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"watch":   NewWatchCommand(wiring.stderr, wiring.newClient),
		"memory":  NewMemoryCommand(wiring.stdout, wiring.stderr, wiring.loadConfig, wiring.newMemory),
		"version": NewVersionCommand(wiring.stdout, wiring.stderr, wiring.version),
	}
}
