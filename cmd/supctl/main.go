// supctl sends one control command to one or more supd daemons and prints
// each reply.
//
// Usage:
//
//	supctl [--socket PATH]... [--config PATH] [--timeout D] COMMAND
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"github.com/axondata/go-sup"
	"github.com/axondata/go-sup/internal/config"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError is reported with exit status 2
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func (e usageError) ExitCode() int { return exitUsage }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if err := execute(args, stdout); err != nil {
		fmt.Fprintf(stderr, "supctl: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			return coder.ExitCode()
		}
		return exitFailure
	}
	return exitOK
}

func execute(args []string, stdout io.Writer) error {
	var sockets []string
	var configPath string
	var timeout time.Duration
	var showVersion bool

	flagSet := pflag.NewFlagSet("supctl", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringArrayVarP(&sockets, "socket", "s", nil, "control socket of a daemon (repeatable)")
	flagSet.StringVarP(&configPath, "config", "c", "", "read the socket path from this supd configuration file")
	flagSet.DurationVar(&timeout, "timeout", sup.DefaultReadTimeout, "time allowed for each daemon to answer")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stdout, flagSet)
			return nil
		}
		return usageError{msg: err.Error()}
	}

	if showVersion {
		v := sup.GetVersion()
		fmt.Fprintf(stdout, "supctl %s (protocol %s)\n", v.Version, v.Protocol)
		return nil
	}

	if flagSet.NArg() != 1 {
		return usageError{msg: "expected exactly one command: " + commandNames()}
	}
	cmd := sup.ParseCommand(flagSet.Arg(0))
	if cmd == sup.CommandUnknown {
		return usageError{msg: fmt.Sprintf("unknown command %q, expected one of: %s", flagSet.Arg(0), commandNames())}
	}

	if len(sockets) == 0 {
		socket, err := defaultSocket(configPath)
		if err != nil {
			return err
		}
		sockets = []string{socket}
	}

	mgr := sup.NewManager(sup.WithTimeout(timeout))
	results, err := mgr.Send(context.Background(), cmd, sockets...)

	for _, socket := range sortedKeys(results) {
		if len(sockets) > 1 {
			fmt.Fprintf(stdout, "%s: %s\n", socket, results[socket])
		} else {
			fmt.Fprintln(stdout, results[socket])
		}
	}
	return err
}

// defaultSocket resolves the socket from configPath, or the built-in default
func defaultSocket(configPath string) (string, error) {
	if configPath == "" {
		return sup.DefaultSocketPath, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Sup.Socket, nil
}

func commandNames() string {
	var names string
	for i, cmd := range sup.Commands() {
		if i > 0 {
			names += ", "
		}
		names += cmd.String()
	}
	return names
}

func sortedKeys(m map[string]sup.Response) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage:\n  supctl [flags] COMMAND\n\nCommands:\n")
	for _, cmd := range sup.Commands() {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.String(), cmd.Description())
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}
