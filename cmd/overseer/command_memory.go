package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"overseer/internal/config"
	"overseer/internal/logging"
	"overseer/internal/memory"
	"overseer/internal/types"
)

const memoryUsage = `usage: overseer memory <operation> [args]

Operations:
  collections
  delete-collection <name>
  add <collection> <id> <content> [metadata_json]
  search <collection> <query> [n_results=5] [filter_json]
  update <collection> <id> <content> [metadata_json]
  delete <collection> <id>
  list [collection] [limit=100]
  stats [collection]

A collection of "-" selects the configured default collection.
JSON arguments may contain comments and trailing commas.`

type memoryClient interface {
	ListCollections(ctx context.Context) ([]types.MemoryCollection, error)
	DeleteCollection(ctx context.Context, name string) error
	Add(ctx context.Context, collection, id, content string, metadata map[string]any) (types.MemoryResult, error)
	Update(ctx context.Context, collection, id, content string, metadata map[string]any) (types.MemoryResult, error)
	Delete(ctx context.Context, collection, id string) (types.MemoryResult, error)
	Search(ctx context.Context, collection, query string, n int, where map[string]any) ([]types.MemoryDocument, error)
	List(ctx context.Context, collection string, limit int) ([]types.MemoryDocument, error)
	Stats(ctx context.Context, collection string) (types.MemoryStats, error)
}

type memoryFactory func(cfg config.CoreConfig) (memoryClient, logging.Logger, func(), error)

// newMemoryClient builds a Chroma client that logs every operation to the
// memory log file.
func newMemoryClient(cfg config.CoreConfig) (memoryClient, logging.Logger, func(), error) {
	logger := logging.Nop()
	closeLog := func() {}
	if path, err := config.MemoryLogPath(); err == nil {
		if fileLogger, closer, err := logging.OpenFile(path, logging.ParseLevel(cfg.LogLevel())); err == nil {
			logger = fileLogger.With(logging.F("component", "memory"))
			closeLog = func() { _ = closer.Close() }
		}
	}
	client, err := memory.NewClient(memory.Config{
		BaseURL:  cfg.MemoryBaseURL(),
		Tenant:   cfg.MemoryTenant(),
		Database: cfg.MemoryDatabase(),
		Timeout:  cfg.MemoryTimeout(),
		Logger:   logger,
	})
	if err != nil {
		closeLog()
		return nil, nil, nil, err
	}
	return client, logger, closeLog, nil
}

type MemoryCommand struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (config.CoreConfig, error)
	newMemory  memoryFactory
}

func NewMemoryCommand(stdout, stderr io.Writer, loadConfig func() (config.CoreConfig, error), newMemory memoryFactory) *MemoryCommand {
	return &MemoryCommand{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: loadConfig,
		newMemory:  newMemory,
	}
}

// Run prints the operation result as JSON. Failures are printed as
// {"error": "..."} and reported to main as already handled.
func (c *MemoryCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("memory", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() { fmt.Fprintln(c.stderr, memoryUsage) }
	// Positional content may start with "-".
	fs.SetInterspersed(false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return c.fail(nil, fmt.Errorf("operation is required"))
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return c.fail(nil, err)
	}
	client, logger, closeLog, err := c.newMemory(cfg)
	if err != nil {
		return c.fail(nil, err)
	}
	defer closeLog()

	result, err := c.dispatch(context.Background(), client, cfg.MemoryDefaultCollection(), rest[0], rest[1:])
	if err != nil {
		return c.fail(logger.With(logging.F("op", rest[0])), err)
	}
	return writeStructured(c.stdout, formatJSON, result)
}

func (c *MemoryCommand) dispatch(ctx context.Context, client memoryClient, defaultCollection, op string, args []string) (any, error) {
	collection := func(i int) string {
		if i >= len(args) {
			return defaultCollection
		}
		if name := strings.TrimSpace(args[i]); name != "" && name != "-" {
			return name
		}
		return defaultCollection
	}

	switch op {
	case "collections":
		if err := requireArgs(op, args, 0, 0); err != nil {
			return nil, err
		}
		collections, err := client.ListCollections(ctx)
		if collections == nil {
			collections = []types.MemoryCollection{}
		}
		return collections, err
	case "delete-collection":
		if err := requireArgs(op, args, 1, 1); err != nil {
			return nil, err
		}
		name := collection(0)
		if err := client.DeleteCollection(ctx, name); err != nil {
			return nil, err
		}
		return types.MemoryResult{Success: true, Collection: name}, nil
	case "add", "update":
		if len(args) < 3 {
			return nil, fmt.Errorf("%s takes at least 3 arguments, got %d", op, len(args))
		}
		metadata, err := trailingObject(args, 3, "metadata_json")
		if err != nil {
			return nil, err
		}
		if op == "add" {
			return client.Add(ctx, collection(0), args[1], args[2], metadata)
		}
		return client.Update(ctx, collection(0), args[1], args[2], metadata)
	case "search":
		if err := requireArgs(op, args, 2, 4); err != nil {
			return nil, err
		}
		n := memory.DefaultSearchN
		if len(args) > 2 {
			parsed, err := positiveInt(args[2], "n_results")
			if err != nil {
				return nil, err
			}
			n = parsed
		}
		where, err := optionalObject(args, 3, "filter_json")
		if err != nil {
			return nil, err
		}
		docs, err := client.Search(ctx, collection(0), args[1], n, where)
		if docs == nil {
			docs = []types.MemoryDocument{}
		}
		return docs, err
	case "delete":
		if err := requireArgs(op, args, 2, 2); err != nil {
			return nil, err
		}
		return client.Delete(ctx, collection(0), args[1])
	case "list":
		if err := requireArgs(op, args, 0, 2); err != nil {
			return nil, err
		}
		limit := memory.DefaultListLimit
		if len(args) > 1 {
			parsed, err := positiveInt(args[1], "limit")
			if err != nil {
				return nil, err
			}
			limit = parsed
		}
		docs, err := client.List(ctx, collection(0), limit)
		if docs == nil {
			docs = []types.MemoryDocument{}
		}
		return docs, err
	case "stats":
		if err := requireArgs(op, args, 0, 1); err != nil {
			return nil, err
		}
		return client.Stats(ctx, collection(0))
	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
}

func (c *MemoryCommand) fail(logger logging.Logger, err error) error {
	if logger != nil {
		logger.Error("memory_command_failed", logging.F("error", err))
	}
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	fmt.Fprintln(c.stdout, string(data))
	return &reportedError{err: err}
}

func requireArgs(op string, args []string, minArgs, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		if minArgs == maxArgs {
			return fmt.Errorf("%s takes %d argument(s), got %d", op, minArgs, len(args))
		}
		return fmt.Errorf("%s takes %d to %d arguments, got %d", op, minArgs, maxArgs, len(args))
	}
	return nil
}

// trailingObject joins args[i:] with spaces before parsing, so unquoted
// metadata split by the shell still reads as one object.
func trailingObject(args []string, i int, name string) (map[string]any, error) {
	if i >= len(args) {
		return nil, nil
	}
	return optionalObject([]string{strings.Join(args[i:], " ")}, 0, name)
}

func optionalObject(args []string, i int, name string) (map[string]any, error) {
	if i >= len(args) {
		return nil, nil
	}
	obj, err := memory.ParseObject(args[i])
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return obj, nil
}

func positiveInt(raw, name string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return value, nil
}
