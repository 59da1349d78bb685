// Command vit trains and evaluates the vision transformer classifier.
//
//	vit train [flags]   train on cifar10, mnist or synthetic data
//	vit eval  [flags]   evaluate a checkpoint and print the confusion matrix
//	vit info  [flags]   dump a checkpoint header
//	vit version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "train":
		err = trainCmd(ctx, args)
	case "eval":
		err = evalCmd(ctx, args)
	case "info":
		err = infoCmd(args)
	case "version":
		fmt.Printf("vit %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "vit: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted")
			os.Exit(130)
		}
		slog.Error("failed", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: vit <command> [flags]

Commands:
  train     Train a model
  eval      Evaluate a checkpoint
  info      Show checkpoint metadata
  version   Show version

Run 'vit <command> -h' for command flags.
`)
}

// logFlags are shared by every command that logs.
type logFlags struct {
	level  string
	format string
}

func (l *logFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&l.level, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&l.format, "log-format", "text", "log format: text or json")
}

// setup installs the default slog logger.
func (l *logFlags) setup() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", l.level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(l.format) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("log format %q: want text or json", l.format)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}
