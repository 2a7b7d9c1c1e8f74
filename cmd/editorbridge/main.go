// cmd/editorbridge/main.go
//
// editorbridge is the host-side daemon. It owns the cooperative host loop,
// the processor worker pool and the HTTP command bridge, and serves until
// SIGINT or SIGTERM.
//
// Flow:
// 1. Initialize .editorbridge/ and load its config
// 2. Assemble loop, pool, orchestrator, sinks and commands
// 3. Serve until signalled, then drain the bridge before stopping the loop

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "editorbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("editorbridge", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.projectDir, "project", "p", "", "project directory (defaults to cwd)")
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "explicit config file (YAML or JSONC)")
	flagSet.StringSliceVarP(&opts.addresses, "address", "a", nil, "listen address, repeatable (overrides config)")
	flagSet.IntVar(&opts.workers, "workers", 0, "processor workers (overrides config)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "mirror the log to stderr")
	flagSet.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight commands on exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if opts.projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		opts.projectDir = cwd
	}
	if opts.verbose {
		opts.mirror = os.Stderr
	}

	d, err := newDaemon(opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.serve(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: editorbridge [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Serves the editor command bridge for a project directory.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flagSet.PrintDefaults()
}
