// Command planwave executes a query plan document: it validates the plan,
// levels it into waves, runs the steps through the builtin tools, and prints
// the execution result as JSON.
//
// Usage:
//
//	planwave run <plan.json>     execute a plan file ("-" reads stdin)
//	planwave check <plan.json>   validate and print the wave schedule
//	planwave tools               list the registered tools
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jperaza/planwave/internal/cache"
	"github.com/jperaza/planwave/internal/engine"
	"github.com/jperaza/planwave/internal/logging"
	"github.com/jperaza/planwave/internal/tools"
	"github.com/jperaza/planwave/internal/validation"
	"github.com/jperaza/planwave/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(cfg, logger, os.Args[2:])
	case "check":
		err = checkCmd(os.Args[2:])
	case "tools":
		err = toolsCmd(cfg)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `planwave — dependency-aware parallel plan execution

usage:
  planwave run <plan.json>     execute a plan ("-" reads stdin)
  planwave check <plan.json>   validate and print the wave schedule
  planwave tools               list registered tools
`)
}

func newLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.LogFormat == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}

// loadPlan reads and validates a plan document from a file or stdin.
func loadPlan(path string) (*schema.QueryPlan, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	validator, err := validation.Default()
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	if err := validator.ValidateRaw(raw); err != nil {
		return nil, err
	}

	var plan schema.QueryPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func newRegistry(cfg Config) (*tools.MapRegistry, error) {
	reg := tools.NewRegistry()
	err := tools.RegisterBuiltins(reg, tools.HTTPConfig{DefaultTimeout: cfg.httpTimeout()})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func runCmd(cfg Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: planwave run <plan.json>")
	}

	plan, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxWorkers(cfg.MaxWorkers),
	}
	if cfg.CachePath != "" {
		c, cerr := cache.NewLibSQLCache("file:"+cfg.CachePath, cfg.cacheTTL())
		if cerr != nil {
			return fmt.Errorf("open cache: %w", cerr)
		}
		defer c.Close()
		opts = append(opts, engine.WithCache(c))
	} else {
		opts = append(opts, engine.WithCache(cache.NewMemoryCache()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := engine.New(reg, opts...).Execute(ctx, plan)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if result.Status == schema.RunStatusFailed {
		os.Exit(1)
	}
	return nil
}

func checkCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: planwave check <plan.json>")
	}

	plan, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	waves, err := engine.BuildWaves(plan)
	if err != nil {
		return err
	}

	out := map[string]any{
		"steps":     len(plan.Steps),
		"waves":     waves.Groups,
		"max_width": waves.MaxWidth(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toolsCmd(cfg Config) error {
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	for _, info := range reg.List() {
		if info.Description != "" {
			fmt.Printf("%-14s %s\n", info.Name, info.Description)
		} else {
			fmt.Println(info.Name)
		}
	}
	return nil
}
