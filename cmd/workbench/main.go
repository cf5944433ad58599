// Package main implements the workbench command line interface: it builds
// processing graphs from YAML descriptions, validates them, and runs them
// until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Steve19802/workbench/block"
	"github.com/Steve19802/workbench/blocks"
	"github.com/Steve19802/workbench/graph"
	"github.com/Steve19802/workbench/metric"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "workbench"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

func main() {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Signal processing graph engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text",
		"log format: text, json")

	root.AddCommand(newRunCommand(), newValidateCommand(), newDumpCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var stopTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Build a graph from a description and run it until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logger := setupLogger(flagLogLevel, flagLogFormat)
			slog.SetDefault(logger)

			metrics := metric.NewRegistry()
			engine, err := buildEngine(args[0], logger, metrics)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := engine.Start(ctx); err != nil {
				return fmt.Errorf("start graph: %w", err)
			}
			logger.Info("graph running", "blocks", len(engine.Blocks()))

			<-ctx.Done()
			logger.Info("shutting down")
			if err := engine.Stop(stopTimeout); err != nil {
				return fmt.Errorf("stop graph: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", graph.DefaultStopTimeout,
		"how long to wait for producer workers on shutdown")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <graph.yaml>",
		Short: "Check that a description builds without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(flagLogLevel, flagLogFormat)
			if _, err := buildEngine(args[0], logger, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return nil
		},
	}
}

func newDumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <graph.yaml>",
		Short: "Build a description and print the normalized round-trip form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(flagLogLevel, flagLogFormat)
			engine, err := buildEngine(args[0], logger, nil)
			if err != nil {
				return err
			}
			data, err := engine.Description().MarshalYAMLBytes()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// buildEngine loads a YAML description and builds a graph with the built-in
// block library registered.
func buildEngine(path string, logger *slog.Logger, metrics *metric.Registry) (*graph.Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read description: %w", err)
	}
	desc, err := graph.ParseDescription(data)
	if err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}

	registry := block.NewRegistry()
	if err := blocks.RegisterAll(registry); err != nil {
		return nil, fmt.Errorf("register block library: %w", err)
	}

	engine, err := graph.Build(desc, registry, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return engine, nil
}
