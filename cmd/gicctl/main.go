// gicctl brings up, probes and exercises a GICv3 through the driver, either
// against the software platform model or a real distributor via /dev/mem.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tinyrange/gicv3/internal/debug"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gicctl: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name  string
	usage string
	run   func(fs *flag.FlagSet, common *commonFlags, args []string, out io.Writer) error
}

var commands = []command{
	{"boot", "bring up every CPU of the simulated platform and print its state", runBoot},
	{"probe", "read the identification registers of a distributor", runProbe},
	{"bench", "raise, dispatch and complete interrupts in a loop", runBench},
	{"events", "print a diagnostic event log", runEvents},
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	config   string
	verbose  bool
	debugLog string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "YAML file with gic: and sim: sections")
	fs.BoolVar(&c.verbose, "v", false, "enable debug logging")
	fs.StringVar(&c.debugLog, "debug-log", "", "write the binary diagnostic event log to `FILE`")
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: gicctl <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(w, "\nRun 'gicctl <command> -h' for the flags of a command.\n")
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		usage(os.Stderr)
		return fmt.Errorf("missing command")
	}
	name := args[0]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		fs := flag.NewFlagSet("gicctl "+c.name, flag.ContinueOnError)
		var common commonFlags
		common.register(fs)
		err := c.run(fs, &common, args[1:], out)
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if name == "help" || name == "-h" || name == "--help" {
		usage(out)
		return nil
	}
	usage(os.Stderr)
	return fmt.Errorf("unknown command %q", name)
}

// setup installs the logger and opens the diagnostic log. The returned
// function closes the log.
func (c *commonFlags) setup() (func(), error) {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if c.debugLog == "" {
		return func() {}, nil
	}
	if err := debug.OpenFile(c.debugLog); err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	return func() {
		if err := debug.Close(); err != nil {
			slog.Warn("close debug log", "path", c.debugLog, "error", err)
		}
	}, nil
}
